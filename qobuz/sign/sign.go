package sign

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"strconv"
	"time"
)

// Signer produces the time-bound request signatures the streaming and
// favorites endpoints expect. The backend rotates its scheme together with
// the web bundle, so the algorithm is injected rather than hardcoded at the
// call sites.
type Signer interface {
	Timestamp() int64
	SignStreamRequest(trackID, formatID uint64, ts int64, secret string) string
	SignFavoritesRequest(ts int64, secret string) string
}

// MD5Signer implements the request-hash scheme of the current web player
// generation: an MD5 hex digest over the concatenated endpoint name, sorted
// request parameters, timestamp, and the active secret.
type MD5Signer struct{}

var _ Signer = MD5Signer{}

func (MD5Signer) Timestamp() int64 {
	return time.Now().Unix()
}

func (MD5Signer) SignStreamRequest(trackID, formatID uint64, ts int64, secret string) string {
	payload := "trackgetFileUrl" +
		"format_id" + strconv.FormatUint(formatID, 10) +
		"intentstream" +
		"track_id" + strconv.FormatUint(trackID, 10) +
		strconv.FormatInt(ts, 10) +
		secret

	return hexDigest(payload)
}

func (MD5Signer) SignFavoritesRequest(ts int64, secret string) string {
	payload := "favoritegetUserFavorites" +
		strconv.FormatInt(ts, 10) +
		secret

	return hexDigest(payload)
}

func hexDigest(payload string) string {
	sum := md5.Sum([]byte(payload)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
