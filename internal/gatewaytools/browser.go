package gatewaytools

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserController backs the browser_* tool family over a single shared
// headless Chromium instance (go-rod/rod), launched lazily on first use
// and kept alive across calls within a turn.
type BrowserController struct {
	mu       sync.Mutex
	browser  *rod.Browser
	page     *rod.Page
	launched bool
}

// NewBrowserController returns a controller that launches Chromium on
// the first browser tool call other than browser_close.
func NewBrowserController() *BrowserController {
	return &BrowserController{}
}

func (b *BrowserController) ensure() error {
	if b.launched {
		return nil
	}
	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	b.browser = browser
	b.page = page
	b.launched = true
	return nil
}

func (b *BrowserController) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *BrowserController) closeLocked() error {
	if !b.launched {
		return nil
	}
	b.launched = false
	return b.browser.Close()
}

func (e *Executor) browserDispatch(ctx context.Context, name string, args map[string]interface{}) Result {
	if e.browser == nil {
		return failError("browser tool unavailable")
	}
	b := e.browser
	b.mu.Lock()
	defer b.mu.Unlock()

	if name != ToolBrowserClose {
		if err := b.ensure(); err != nil {
			return failError(err.Error())
		}
	}

	switch name {
	case ToolBrowserNavigate:
		url, ok := stringArg(args, "url")
		if !ok {
			return failMessage("requires url")
		}
		if err := b.page.Context(ctx).Navigate(url); err != nil {
			return failError(err.Error())
		}
		b.page.MustWaitLoad()
		return ok2(map[string]interface{}{"url": url})

	case ToolBrowserScreenshot:
		data, err := b.page.Context(ctx).Screenshot(true, nil)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(map[string]interface{}{"bytes": len(data)})

	case ToolBrowserClick:
		selector, ok := stringArg(args, "selector")
		if !ok {
			return failMessage("requires selector")
		}
		el, err := b.page.Context(ctx).Element(selector)
		if err != nil {
			return failError(err.Error())
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	case ToolBrowserType:
		selector, ok := stringArg(args, "selector")
		if !ok {
			return failMessage("requires selector")
		}
		text, _ := stringArg(args, "text")
		el, err := b.page.Context(ctx).Element(selector)
		if err != nil {
			return failError(err.Error())
		}
		if err := el.Input(text); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	case ToolBrowserGetText:
		selector, ok := stringArg(args, "selector")
		if !ok {
			return failMessage("requires selector")
		}
		el, err := b.page.Context(ctx).Element(selector)
		if err != nil {
			return failError(err.Error())
		}
		text, err := el.Text()
		if err != nil {
			return failError(err.Error())
		}
		return ok2(map[string]interface{}{"text": text})

	case ToolBrowserScroll:
		dy := intArg(args, "dy", 0)
		if err := b.page.Context(ctx).Mouse.Scroll(0, float64(dy), 1); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	case ToolBrowserWaitFor:
		selector, ok := stringArg(args, "selector")
		if !ok {
			return failMessage("requires selector")
		}
		if _, err := b.page.Context(ctx).Element(selector); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	case ToolBrowserEvaluate:
		script, ok := stringArg(args, "script")
		if !ok {
			return failMessage("requires script")
		}
		res, err := b.page.Context(ctx).Eval(script)
		if err != nil {
			return failError(err.Error())
		}
		return ok2(map[string]interface{}{"result": res.Value.String()})

	case ToolBrowserPDF:
		reader, err := b.page.Context(ctx).PDF(&proto.PagePrintToPDF{})
		if err != nil {
			return failError(err.Error())
		}
		_ = reader
		return ok2(map[string]interface{}{"generated": true})

	case ToolBrowserClose:
		if err := b.closeLocked(); err != nil {
			return failError(err.Error())
		}
		return ok2(nil)

	default:
		return failError("unhandled browser tool " + name)
	}
}
