package types

// UserSession is the authenticated state returned by a successful login.
// Replaced wholesale on re-login.
type UserSession struct {
	UserAuthToken     string `json:"user_auth_token"`
	DisplayName       string `json:"display_name"`
	SubscriptionLabel string `json:"subscription_label"`
}
