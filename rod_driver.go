package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

var rodKeys = map[string]input.Key{
	KeyEscape: input.Escape,
	KeyEnter:  input.Enter,
	KeyTab:    input.Tab,
}

// RodDriver drives one Chrome instance through the DevTools protocol.
type RodDriver struct {
	config   *Config
	logger   *zap.Logger
	browser  *rod.Browser
	launcher *launcher.Launcher

	tabs    []*rod.Page
	current int
	frames  []*rod.Page

	wait time.Duration
	poll time.Duration
}

// NewRodDriver launches a browser and opens the first tab. Each call gets its
// own profile so parallel sessions share no cookies or storage.
func NewRodDriver(ctx context.Context, config *Config, logger *zap.Logger) (*RodDriver, error) {
	d := &RodDriver{
		config: config,
		logger: logger.Named("driver"),
		wait:   config.Timeouts.Wait,
		poll:   config.Timeouts.Poll,
	}
	if d.poll <= 0 {
		d.poll = 250 * time.Millisecond
	}

	if err := d.setupBrowser(); err != nil {
		return nil, err
	}
	if err := d.openFirstTab(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewRodDriverFactory returns a DriverFactory bound to config.
func NewRodDriverFactory(config *Config, logger *zap.Logger) DriverFactory {
	return func(ctx context.Context) (Driver, error) {
		return NewRodDriver(ctx, config, logger)
	}
}

func (d *RodDriver) setupBrowser() error {
	d.logger.Debug(T("browser_launching"))

	// Leakless deadlocks on Windows, see go-rod/rod#853.
	useLeakless := runtime.GOOS != "windows"

	d.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(d.config.Headless)

	// A shared profile must not be opened by two sessions at once.
	if d.config.BrowserProfilePath != "" {
		dir := filepath.Join(d.config.BrowserProfilePath, uuid.NewString())
		d.launcher = d.launcher.UserDataDir(dir)
		d.logger.Debug("profile directory set", zap.String("dir", dir))
	}

	switch {
	case d.config.BrowserBin != "":
		d.launcher = d.launcher.Bin(d.config.BrowserBin)
	default:
		if chromePath, ok := launcher.LookPath(); ok {
			d.launcher = d.launcher.Bin(chromePath)
			d.logger.Debug(T("browser_using_system_chrome"), zap.String("path", chromePath))
		} else {
			d.logger.Info(T("browser_chrome_not_found"))
		}
	}

	url, err := d.launcher.Launch()
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "ProcessSingleton") || strings.Contains(msg, "SingletonLock") {
			return fmt.Errorf("%s: %w", T("error_chrome_already_running"), err)
		}
		if strings.Contains(msg, "Access is denied") || strings.Contains(msg, "permission denied") {
			return fmt.Errorf("%s: %w", T("error_browser_download_permission"), err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	d.browser = rod.New().ControlURL(url)
	if err := d.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	d.logger.Debug(T("browser_launched"))
	return nil
}

func (d *RodDriver) openFirstTab(ctx context.Context) error {
	var (
		page *rod.Page
		err  error
	)
	if d.config.Stealth {
		page, err = stealth.Page(d.browser)
	} else {
		page, err = d.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	vp := d.config.Viewport()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
		Mobile:            vp.Mobile,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	ua := desktopUserAgent
	if vp.Mobile {
		ua = mobileUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		d.logger.Warn("failed to set user agent", zap.Error(err))
	}

	d.tabs = []*rod.Page{page}
	d.current = 0
	return nil
}

func (d *RodDriver) isBrowserAlive() bool {
	if d.browser == nil {
		return false
	}
	if _, err := d.browser.Version(); err != nil {
		d.logger.Debug("browser version check failed", zap.Error(err))
		return false
	}
	if tab := d.tab(); tab != nil {
		if _, err := tab.Info(); err != nil {
			d.logger.Debug("page info check failed", zap.Error(err))
			return false
		}
	}
	return true
}

func (d *RodDriver) tab() *rod.Page {
	if d.current < 0 || d.current >= len(d.tabs) {
		return nil
	}
	return d.tabs[d.current]
}

// scope is the document actions resolve against: the innermost entered
// frame, or the active tab.
func (d *RodDriver) scope() *rod.Page {
	if n := len(d.frames); n > 0 {
		return d.frames[n-1]
	}
	return d.tab()
}

func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	d.frames = nil
	page := d.tab().Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}
	return nil
}

func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.tab().Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *RodDriver) visible(ctx context.Context, loc Locator) ([]*rod.Element, error) {
	nodes, err := resolveVisible(rodDocument{page: d.scope().Context(ctx)}, loc)
	if err != nil {
		return nil, err
	}
	els := make([]*rod.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, n.(rodElement).el)
	}
	return els, nil
}

// find polls for the first visible match of loc until the wait timeout.
func (d *RodDriver) find(ctx context.Context, loc Locator) (*rod.Element, error) {
	deadline := time.Now().Add(d.wait)
	for {
		els, err := d.visible(ctx, loc)
		if err == nil && len(els) > 0 {
			return els[0], nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, notFound(loc)
		}
		if err := sleep(ctx, d.poll); err != nil {
			return nil, err
		}
	}
}

func (d *RodDriver) CountVisible(ctx context.Context, loc Locator, within time.Duration) (int, error) {
	deadline := time.Now().Add(within)
	for {
		els, err := d.visible(ctx, loc)
		if err == nil && len(els) > 0 {
			return len(els), nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		if err := sleep(ctx, d.poll); err != nil {
			return 0, err
		}
	}
}

func (d *RodDriver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	n, err := d.CountVisible(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if n == 0 {
		return timedOut("waiting for visible", loc)
	}
	return nil
}

func (d *RodDriver) WaitInvisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		els, err := d.visible(ctx, loc)
		if err == nil && len(els) == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return timedOut("waiting for invisible", loc)
		}
		if err := sleep(ctx, d.poll); err != nil {
			return err
		}
	}
}

func (d *RodDriver) Click(ctx context.Context, loc Locator) error {
	el, err := d.find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		d.logger.Debug("scroll into view failed", zap.String("element", loc.Label()), zap.Error(err))
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) Fill(ctx context.Context, loc Locator, value string) error {
	el, err := d.find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text in %s: %w", loc.Label(), err)
	}
	return el.Input(value)
}

func (d *RodDriver) Clear(ctx context.Context, loc Locator) error {
	return d.Fill(ctx, loc, "")
}

func (d *RodDriver) PressKey(ctx context.Context, key string) error {
	k, ok := rodKeys[key]
	if !ok {
		return contractViolation("unsupported key %q", key)
	}
	return d.tab().Context(ctx).Keyboard.Press(k)
}

func (d *RodDriver) SetChecked(ctx context.Context, loc Locator, checked bool) error {
	el, err := d.find(ctx, loc)
	if err != nil {
		return err
	}

	var current bool
	if aria, err := el.Attribute("aria-checked"); err == nil && aria != nil {
		current = *aria == "true"
	} else {
		prop, err := el.Property("checked")
		if err != nil {
			return fmt.Errorf("read checked state of %s: %w", loc.Label(), err)
		}
		current = prop.Bool()
	}

	if current == checked {
		return nil
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *RodDriver) Text(ctx context.Context, loc Locator) (string, error) {
	el, err := d.find(ctx, loc)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (d *RodDriver) TextAll(ctx context.Context, loc Locator) ([]string, error) {
	els, err := d.visible(ctx, loc)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, nil
}

func (d *RodDriver) Attribute(ctx context.Context, loc Locator, name string) (string, error) {
	el, err := d.find(ctx, loc)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (d *RodDriver) EvaluateInPage(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	obj, err := d.tab().Context(ctx).Eval(script, args...)
	if err != nil {
		return nil, err
	}
	return obj.Value.Val(), nil
}

func (d *RodDriver) EnterFrame(ctx context.Context, loc Locator) error {
	el, err := d.find(ctx, loc)
	if err != nil {
		return err
	}
	frame, err := el.Frame()
	if err != nil {
		return fmt.Errorf("enter frame %s: %w", loc.Label(), err)
	}
	d.frames = append(d.frames, frame)
	return nil
}

func (d *RodDriver) ExitToTop(ctx context.Context) error {
	d.frames = nil
	return ctx.Err()
}

// refreshTabs keeps known tabs in their opening order and appends new ones.
func (d *RodDriver) refreshTabs() error {
	pages, err := d.browser.Pages()
	if err != nil {
		return err
	}
	alive := make(map[proto.TargetTargetID]*rod.Page, len(pages))
	for _, p := range pages {
		alive[p.TargetID] = p
	}

	var active proto.TargetTargetID
	if tab := d.tab(); tab != nil {
		active = tab.TargetID
	}

	ordered := make([]*rod.Page, 0, len(pages))
	for _, p := range d.tabs {
		if _, ok := alive[p.TargetID]; ok {
			ordered = append(ordered, p)
			delete(alive, p.TargetID)
		}
	}
	for _, p := range pages {
		if _, ok := alive[p.TargetID]; ok {
			ordered = append(ordered, p)
		}
	}

	d.tabs = ordered
	d.current = 0
	for i, p := range d.tabs {
		if p.TargetID == active {
			d.current = i
		}
	}
	return nil
}

func (d *RodDriver) TabCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := d.refreshTabs(); err != nil {
		return 0, err
	}
	return len(d.tabs), nil
}

func (d *RodDriver) WaitForTabs(ctx context.Context, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		count, err := d.TabCount(ctx)
		if err == nil && count == n {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: expected %d tabs, have %d", ErrTimeout, n, count)
		}
		if err := sleep(ctx, d.poll); err != nil {
			return err
		}
	}
}

func (d *RodDriver) switchTab(ctx context.Context, delta int) error {
	if err := d.refreshTabs(); err != nil {
		return err
	}
	next := d.current + delta
	if next < 0 || next >= len(d.tabs) {
		return fmt.Errorf("%w: no tab at position %d of %d", ErrContextMisuse, next+1, len(d.tabs))
	}
	if _, err := d.tabs[next].Context(ctx).Activate(); err != nil {
		return err
	}
	d.current = next
	d.frames = nil
	return nil
}

func (d *RodDriver) SwitchToNextTab(ctx context.Context) error {
	return d.switchTab(ctx, 1)
}

func (d *RodDriver) SwitchToPreviousTab(ctx context.Context) error {
	return d.switchTab(ctx, -1)
}

func (d *RodDriver) Screenshot(ctx context.Context, path string) error {
	if !d.isBrowserAlive() {
		return fmt.Errorf("browser is not running")
	}
	data, err := d.tab().Context(ctx).Screenshot(true, nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (d *RodDriver) Close() error {
	for _, p := range d.tabs {
		_ = p.Close()
	}
	d.tabs = nil
	d.frames = nil

	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
	d.logger.Debug(T("browser_destroyed"))
	return err
}

// rodDocument adapts a page or frame document to domNode.
type rodDocument struct {
	page *rod.Page
}

func (r rodDocument) Query(kind SelectorKind, selector string) ([]domNode, error) {
	var (
		els rod.Elements
		err error
	)
	if kind == SelectorXPath {
		els, err = r.page.ElementsX(selector)
	} else {
		els, err = r.page.Elements(selector)
	}
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (r rodDocument) Text() (string, error) { return "", nil }

func (r rodDocument) Attribute(string) (string, bool, error) { return "", false, nil }

func (r rodDocument) Visible() (bool, error) { return true, nil }

// rodElement adapts a *rod.Element to domNode.
type rodElement struct {
	el *rod.Element
}

func (r rodElement) Query(kind SelectorKind, selector string) ([]domNode, error) {
	var (
		els rod.Elements
		err error
	)
	if kind == SelectorXPath {
		els, err = r.el.ElementsX(scopedXPath(selector))
	} else {
		els, err = r.el.Elements(selector)
	}
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

// scopedXPath makes every absolute branch of a union relative to the
// context node. An XPath starting with "/" searches the whole document even
// when evaluated on an element.
func scopedXPath(selector string) string {
	var (
		branches []string
		start    int
		depth    int
		quote    rune
	)
	for i, r := range selector {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			depth--
		case r == '|' && depth == 0:
			branches = append(branches, selector[start:i])
			start = i + 1
		}
	}
	branches = append(branches, selector[start:])

	for i, b := range branches {
		trimmed := strings.TrimSpace(b)
		path := strings.TrimLeft(trimmed, "(")
		if strings.HasPrefix(path, "/") {
			trimmed = trimmed[:len(trimmed)-len(path)] + "." + path
		}
		branches[i] = trimmed
	}
	return strings.Join(branches, " | ")
}

func (r rodElement) Text() (string, error) { return r.el.Text() }

func (r rodElement) Attribute(name string) (string, bool, error) {
	v, err := r.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (r rodElement) Visible() (bool, error) { return r.el.Visible() }

func wrapElements(els rod.Elements) []domNode {
	nodes := make([]domNode, 0, len(els))
	for _, el := range els {
		nodes = append(nodes, rodElement{el: el})
	}
	return nodes
}
