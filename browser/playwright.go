package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/wakujs/ssr-contract-tests/framework"
)

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	config  Config
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
	logger  framework.Logger

	expectTimeout time.Duration
}

func openPlaywright(config Config) (Driver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start Playwright: %w", err)
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
	}
	if config.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(config.ExecutablePath)
	}
	b, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch Chromium: %w", err)
	}
	config.Logger.Printf("Launched Chromium %s with Playwright", b.Version())
	return &playwrightDriver{pw: pw, browser: b, config: config}, nil
}

func (d *playwrightDriver) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	logger := opts.Logger
	if logger == nil {
		logger = d.config.Logger
	}
	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		JavaScriptEnabled: playwright.Bool(opts.JavaScriptEnabled),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultNavigationTimeout(float64(d.config.NavigationTimeout.Milliseconds()))
	page.SetDefaultTimeout(float64(d.config.ExpectTimeout.Milliseconds()))
	logger.Printf("Opened page (JavaScript enabled: %t)", opts.JavaScriptEnabled)
	return &playwrightPage{
		context: bctx,
		page:    page,
		logger:  logger,

		expectTimeout: d.config.ExpectTimeout,
	}, nil
}

func (d *playwrightDriver) Close() error {
	err := d.browser.Close()
	if stopErr := d.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

func (p *playwrightPage) Goto(url string) error {
	p.logger.Printf("Navigating to %s", url)
	if _, err := p.page.Goto(url); err != nil {
		return fmt.Errorf("could not load %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) Click(testID string) error {
	p.logger.Printf("Clicking %s", TestIDSelector(testID))
	return p.page.GetByTestId(testID).Click()
}

func (p *playwrightPage) Text(testID string) (string, error) {
	return p.page.GetByTestId(testID).TextContent()
}

func (p *playwrightPage) ExpectText(testID, expected string) error {
	locator := p.page.GetByTestId(testID)
	err := pollText(testID, expected, p.expectTimeout, func() (string, error) {
		return locator.TextContent(playwright.LocatorTextContentOptions{
			Timeout: playwright.Float(float64((expectPollInterval * 10).Milliseconds())),
		})
	})
	if err == nil {
		p.logger.Printf("%s has text %q", TestIDSelector(testID), expected)
	}
	return err
}

func (p *playwrightPage) Close() error {
	err := p.page.Close()
	if ctxErr := p.context.Close(); err == nil {
		err = ctxErr
	}
	return err
}
