package bundle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/xeptore/qbz/httputil"
	"github.com/xeptore/qbz/redact"
)

// The web player ships no public credentials. The app id and the secret
// candidates are recovered from the versioned bundle script referenced by
// the login page. Each vendor bundle generation may move things around,
// hence one small pattern per stage instead of a single expression.
var (
	bundlePathRe = regexp.MustCompile(`<script src="(/resources/\d+\.\d+\.\d+-[a-z]\d{3}/bundle\.js)"></script>`)
	appIDRe      = regexp.MustCompile(`production:\{api:\{appId:"(\d{9})"`)
	seedRe       = regexp.MustCompile(`[a-z]\.initialSeed\("([\w=]+)",window\.utimezone\.([a-z]+)\)`)
	infoExtrasRe = regexp.MustCompile(`"([a-z]+)":\{info:"([\w=]+)",extras:"([\w=]+)"`)
	hexSecretRe  = regexp.MustCompile(`appSecret:"([a-f0-9]{32})"`)
)

var (
	ErrBundlePathNotFound = errors.New("bundle script path not found in login page")
	ErrAppIDNotFound      = errors.New("app id not found in bundle")
	ErrNoSecretsFound     = errors.New("no secrets found in bundle")
)

// Tokens are extracted once per client lifetime and never mutated.
type Tokens struct {
	AppID   string
	Secrets []string
}

const loginPath = "/login"

func Extract(ctx context.Context, logger zerolog.Logger, client *http.Client, baseURL string) (*Tokens, error) {
	loginPage, err := fetchText(ctx, client, baseURL+loginPath)
	if nil != err {
		return nil, fmt.Errorf("failed to fetch login page: %w", err)
	}

	bundlePath, err := BundlePath(loginPage)
	if nil != err {
		return nil, err
	}
	logger.Debug().Str("bundle_path", bundlePath).Msg("Bundle script located")

	bundleText, err := fetchText(ctx, client, baseURL+bundlePath)
	if nil != err {
		return nil, fmt.Errorf("failed to fetch bundle: %w", err)
	}

	appID, err := AppID(bundleText)
	if nil != err {
		return nil, err
	}

	secrets, err := Secrets(bundleText)
	if nil != err {
		return nil, err
	}

	logger.
		Info().
		Str("app_id", redact.String(appID)).
		Int("secrets", len(secrets)).
		Msg("Bundle tokens extracted")

	return &Tokens{AppID: appID, Secrets: secrets}, nil
}

func fetchText(ctx context.Context, client *http.Client, u string) (text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if nil != err {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := client.Do(req)
	if nil != err {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close response body: %v", closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	respBytes, err := httputil.ReadResponseBody(resp)
	if nil != err {
		return "", err
	}

	return string(respBytes), nil
}

// BundlePath locates the single versioned bundle script reference in the
// login page HTML.
func BundlePath(html string) (string, error) {
	m := bundlePathRe.FindStringSubmatch(html)
	if nil == m {
		return "", ErrBundlePathNotFound
	}

	return m[1], nil
}

// AppID extracts the 9-digit application id following the production config
// marker.
func AppID(bundleText string) (string, error) {
	m := appIDRe.FindStringSubmatch(bundleText)
	if nil == m {
		return "", ErrAppIDNotFound
	}

	return m[1], nil
}

// Secrets derives candidate signing secrets from the bundle. The primary
// strategy combines the per-timezone seed with its info/extras fragments,
// strips the 44-character tail, and base64-decodes the remainder. Bundles
// predating the obfuscation carry a bare 32-hex appSecret literal instead.
// Candidate order follows discovery order in the bundle text.
func Secrets(bundleText string) ([]string, error) {
	// Last seed wins per timezone.
	seeds := make(map[string]string)
	for _, m := range seedRe.FindAllStringSubmatch(bundleText, -1) {
		seeds[m[2]] = m[1]
	}

	var secrets []string
	for _, m := range infoExtrasRe.FindAllStringSubmatch(bundleText, -1) {
		tz, info, extras := m[1], m[2], m[3]
		seed, ok := seeds[tz]
		if !ok {
			continue
		}

		combined := seed + info + extras
		if len(combined) <= 44 {
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(combined[:len(combined)-44])
		if nil != err || !utf8.Valid(decoded) {
			// A garbled fragment invalidates this candidate only.
			continue
		}

		secrets = append(secrets, string(decoded))
	}

	if len(secrets) == 0 {
		for _, m := range hexSecretRe.FindAllStringSubmatch(bundleText, -1) {
			secrets = append(secrets, m[1])
		}
	}

	if len(secrets) == 0 {
		return nil, ErrNoSecretsFound
	}

	return secrets, nil
}
