// Package auth maintains the single cookie session used to talk to the
// contest site. Login submits the site's login form, Refresh discards every
// cookie and logs in again with the stored credentials, and Session hands out
// the shared HTTP client once a login has succeeded.
package auth
