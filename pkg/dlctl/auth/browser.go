package auth

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/browser"
)

// BrowserOpener hands a URL to something that can show it to the user.
type BrowserOpener interface {
	OpenURL(url string) error
}

type BrowserFunc func(url string) error

func (f BrowserFunc) OpenURL(url string) error {
	return f(url)
}

// NoBrowser never opens anything; the URL is only reported through status.
var NoBrowser BrowserOpener = BrowserFunc(func(string) error { return nil })

// SystemBrowser opens URLs in the desktop browser unless DLCTL_NO_BROWSER is true.
func SystemBrowser() BrowserOpener {
	if strings.EqualFold(os.Getenv("DLCTL_NO_BROWSER"), "true") {
		return NoBrowser
	}
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return BrowserFunc(browser.OpenURL)
}
