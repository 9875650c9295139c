package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"fyne.io/systray"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-writer/buildinfo"
	"github.com/nedpals/davi-nfc-writer/session"
)

// maxTitleLen keeps menu titles readable on every platform.
const maxTitleLen = 48

// TrayApp is the system tray front end: one menu entry per operation plus
// the last tag message and session outcome.
type TrayApp struct {
	app    *App
	cancel context.CancelFunc

	mStatus     *systray.MenuItem
	mTagMessage *systray.MenuItem
	mOutcome    *systray.MenuItem

	mRead          *systray.MenuItem
	mWriteURL      *systray.MenuItem
	mWriteDeeplink *systray.MenuItem

	mFormURL     *systray.MenuItem
	mOpenForm    *systray.MenuItem
	mCopyFormURL *systray.MenuItem

	mDeviceMenu     *systray.MenuItem
	mRefreshDevices *systray.MenuItem
	deviceItems     map[string]*systray.MenuItem

	mQuit *systray.MenuItem
}

// NewTrayApp creates the tray front end for app.
func NewTrayApp(app *App) *TrayApp {
	return &TrayApp{
		app:         app,
		deviceItems: make(map[string]*systray.MenuItem),
	}
}

// Run blocks until the user quits from the menu.
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *TrayApp) onReady() {
	t.setupUI()
	t.app.Controller.Subscribe(t.onEvent)
	t.startServer()
	t.updateDeviceList()
	go t.handleMenuEvents()
}

func (t *TrayApp) onExit() {
	if t.cancel != nil {
		t.cancel()
	}
	t.app.Close()
}

func (t *TrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	t.mStatus = systray.AddMenuItem("Idle", "Session status")
	t.mStatus.Disable()
	t.mTagMessage = systray.AddMenuItem("Tag: none", "Last message read from a tag")
	t.mTagMessage.Disable()
	t.mOutcome = systray.AddMenuItem("No session yet", "Result of the last session")
	t.mOutcome.Disable()

	systray.AddSeparator()

	t.mRead = systray.AddMenuItem("Read Tag", "Read the first record of a tag")
	t.mWriteURL = systray.AddMenuItem("Write URL", "Write "+t.app.Config.Write.URL)
	t.mWriteDeeplink = systray.AddMenuItem("Write Deeplink", "Write "+t.app.Config.Write.Deeplink)

	systray.AddSeparator()

	t.mFormURL = systray.AddMenuItem("Form: starting...", "Form address")
	t.mFormURL.Disable()
	t.mOpenForm = systray.AddMenuItem("Open Form", "Open the write form in a browser")
	t.mCopyFormURL = systray.AddMenuItem("Copy Form URL", "Copy the LAN form address")

	systray.AddSeparator()

	t.mDeviceMenu = systray.AddMenuItem("Device", "Select NFC Device")
	t.mRefreshDevices = t.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")

	systray.AddSeparator()
	t.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (t *TrayApp) startServer() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	go func() {
		t.mFormURL.SetTitle("Form: " + t.app.LANFormURL())
		if err := t.app.Serve(ctx); err != nil {
			logrus.WithError(err).Error("Form server stopped")
			t.mFormURL.SetTitle("Form: unavailable")
			t.mOpenForm.Disable()
			t.mCopyFormURL.Disable()
		}
	}()
}

func (t *TrayApp) handleMenuEvents() {
	for {
		select {
		case <-t.mRead.ClickedCh:
			t.start(session.OperationRead)
		case <-t.mWriteURL.ClickedCh:
			t.start(session.OperationWriteURL)
		case <-t.mWriteDeeplink.ClickedCh:
			t.start(session.OperationWriteDeeplink)
		case <-t.mOpenForm.ClickedCh:
			if err := openBrowser(t.app.FormURL()); err != nil {
				logrus.WithError(err).Warn("Failed to open browser")
			}
		case <-t.mCopyFormURL.ClickedCh:
			if err := copyToClipboard(t.app.LANFormURL()); err != nil {
				logrus.WithError(err).Warn("Failed to copy to clipboard")
			}
		case <-t.mRefreshDevices.ClickedCh:
			t.updateDeviceList()
		case <-t.mQuit.ClickedCh:
			systray.Quit()
			return
		}

		t.handleDeviceSelection()
	}
}

func (t *TrayApp) start(op session.Operation) {
	if err := t.app.Controller.Start(op, ""); err != nil {
		logrus.WithError(err).WithField("operation", op.String()).Warn("Failed to start NFC session")
		t.mStatus.SetTitle("Reader unavailable")
		systray.SetIcon(iconDataError)
		return
	}
	t.mStatus.SetTitle("Hold a tag near the reader")
	systray.SetIcon(iconDataActive)
}

// onEvent runs on the controller's UI queue.
func (t *TrayApp) onEvent(ev session.Event) {
	switch ev.Type {
	case session.EventTagMessage:
		t.mTagMessage.SetTitle("Tag: " + truncate(ev.TagMessage))
	case session.EventOutcome:
		if ev.Outcome == nil {
			return
		}
		t.mOutcome.SetTitle(truncate(ev.Outcome.Message))
		t.mStatus.SetTitle("Idle")
		if ev.Outcome.Success {
			systray.SetIcon(iconDataOK)
		} else {
			systray.SetIcon(iconDataError)
		}
	}
}

func (t *TrayApp) handleDeviceSelection() {
	for name, item := range t.deviceItems {
		select {
		case <-item.ClickedCh:
			for _, other := range t.deviceItems {
				other.Uncheck()
			}
			item.Check()
			t.app.Devices.SetDevicePath(name)
			logrus.WithField("device", name).Info("Switched NFC device")
		default:
		}
	}
}

func (t *TrayApp) updateDeviceList() {
	for _, item := range t.deviceItems {
		item.Hide()
	}
	t.deviceItems = make(map[string]*systray.MenuItem)

	devices, err := t.app.Devices.ListDevices()
	if err != nil {
		logrus.WithError(err).Warn("Error listing devices")
		return
	}

	current := t.app.Devices.DevicePath()
	for i, name := range devices {
		checked := name == current || (current == "" && i == 0)
		t.deviceItems[name] = t.mDeviceMenu.AddSubMenuItemCheckbox(name, "Select this device", checked)
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxTitleLen {
		return s
	}
	return string(r[:maxTitleLen-1]) + "…"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}
	stdin.Close()
	return cmd.Wait()
}
