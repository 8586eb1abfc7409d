package auth

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/telekom/dlctl/pkg/version"
)

// FlowOptions carries the collaborators shared by all flows.
type FlowOptions struct {
	Client  TokenClientFactory
	Browser BrowserOpener
	Logger  *zap.SugaredLogger
	Status  StatusFunc
	// Page is served to the browser on redirect. Defaults to a rendered
	// "authorization received" page.
	Page []byte
}

func (o FlowOptions) withDefaults() FlowOptions {
	if o.Client == nil {
		o.Client = NewTokenClientFactory(http.DefaultClient)
	}
	if o.Browser == nil {
		o.Browser = NoBrowser
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Status == nil {
		o.Status = func(string) {}
	}
	if len(o.Page) == 0 {
		o.Page = defaultCallbackPage(version.Version)
	}
	return o
}
