package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/wakujs/ssr-contract-tests/framework"
)

type rodDriver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	config   Config
}

type rodPage struct {
	incognito *rod.Browser
	page      *rod.Page
	config    Config
	logger    framework.Logger
}

func openRod(ctx context.Context, config Config) (Driver, error) {
	l := launcher.New().Headless(config.Headless)
	if config.ExecutablePath != "" {
		l = l.Bin(config.ExecutablePath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("could not launch Chromium: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("could not connect to Chromium: %w", err)
	}
	if v, err := b.Version(); err == nil {
		config.Logger.Printf("Launched %s with Rod", v.Product)
	}
	return &rodDriver{launcher: l, browser: b, config: config}, nil
}

func (d *rodDriver) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	logger := opts.Logger
	if logger == nil {
		logger = d.config.Logger
	}
	incognito, err := d.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	if !opts.JavaScriptEnabled {
		if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(page); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("could not disable JavaScript: %w", err)
		}
	}
	logger.Printf("Opened page (JavaScript enabled: %t)", opts.JavaScriptEnabled)
	return &rodPage{incognito: incognito, page: page.Context(ctx), config: d.config, logger: logger}, nil
}

func (d *rodDriver) Close() error {
	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()
	return err
}

func (p *rodPage) Goto(url string) error {
	p.logger.Printf("Navigating to %s", url)
	page := p.page.Timeout(p.config.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("could not load %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%s did not finish loading: %w", url, err)
	}
	return nil
}

func (p *rodPage) element(testID string) (*rod.Element, error) {
	return p.page.Timeout(p.config.ExpectTimeout).Element(TestIDSelector(testID))
}

func (p *rodPage) Click(testID string) error {
	p.logger.Printf("Clicking %s", TestIDSelector(testID))
	el, err := p.element(testID)
	if err != nil {
		return fmt.Errorf("could not find %s: %w", TestIDSelector(testID), err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Text(testID string) (string, error) {
	el, err := p.element(testID)
	if err != nil {
		return "", fmt.Errorf("could not find %s: %w", TestIDSelector(testID), err)
	}
	return textContent(el)
}

func (p *rodPage) ExpectText(testID, expected string) error {
	err := pollText(testID, expected, p.config.ExpectTimeout, func() (string, error) {
		el, err := p.page.Timeout(expectPollInterval * 10).Element(TestIDSelector(testID))
		if err != nil {
			return "", err
		}
		return textContent(el)
	})
	if err == nil {
		p.logger.Printf("%s has text %q", TestIDSelector(testID), expected)
	}
	return err
}

// textContent reads the DOM textContent rather than the rendered innerText that Element.Text
// returns, so that whitespace is compared the same way as with Playwright.
func textContent(el *rod.Element) (string, error) {
	res, err := el.Eval(`() => this.textContent`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Close() error {
	err := p.page.Close()
	if ctxErr := p.incognito.Close(); err == nil {
		err = ctxErr
	}
	return err
}
