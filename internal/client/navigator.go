package client

// LoginPath is the login surface users are sent to after invalidation.
const LoginPath = "/login"

// Navigator moves the user between surfaces.
type Navigator interface {
	Location() string
	Navigate(to string)
}

// RedirectToLogin navigates to loginPath unless the user is already there.
func RedirectToLogin(nav Navigator, loginPath string) func(AuthInvalidated) {
	return func(AuthInvalidated) {
		if nav == nil || nav.Location() == loginPath {
			return
		}
		nav.Navigate(loginPath)
	}
}
