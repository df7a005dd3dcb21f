package gui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	fynetooltip "github.com/dweymouth/fyne-tooltip"
	ttwidget "github.com/dweymouth/fyne-tooltip/widget"

	"codeberg.org/snonux/yomibackfill/internal"
	"codeberg.org/snonux/yomibackfill/internal/anki"
	"codeberg.org/snonux/yomibackfill/internal/backfill"
	"codeberg.org/snonux/yomibackfill/internal/preset"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

const unreachableHint = "Make sure the browser with Yomitan and the yomitan-api server are running, then ping again."

// Backend performs the work behind the GUI
type Backend interface {
	PingVersion(ctx context.Context) (string, error)
	Decks(ctx context.Context) ([]anki.Deck, error)
	DeckFields(ctx context.Context, deck string) ([]string, error)
	Presets() ([]preset.Preset, error)
	BackfillDeck(ctx context.Context, deck string, req backfill.Request, dryRun bool) (*backfill.Result, error)
	BackfillPreset(ctx context.Context, ps preset.Preset, dryRun bool) (*backfill.Result, error)
}

// Config holds GUI application configuration
type Config struct {
	CollectionPath string
	YomitanURL     string
}

// Application represents the main GUI application
type Application struct {
	// Fyne components
	app    fyne.App
	window fyne.Window

	// Manual tab
	deckSelect       *widget.Select
	expressionSelect *widget.Select
	readingSelect    *widget.Select
	targets          *TargetList
	replaceCheck     *widget.Check
	dryRunCheck      *widget.Check
	runButton        *ttwidget.Button

	// Presets tab
	presetList      *widget.List
	presetDetails   *widget.Label
	presetDryRun    *widget.Check
	runPresetButton *ttwidget.Button
	selectedPreset  int
	presets         []preset.Preset

	// Shared
	yomitanLabel     *widget.Label
	statusLabel      *widget.Label
	queueStatusLabel *widget.Label
	cancelButton     *ttwidget.Button
	logViewer        *LogViewer

	queue   *JobQueue
	backend Backend
	config  *Config

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new GUI application
func New(config *Config, backend Backend) *Application {
	if config == nil {
		config = &Config{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	fyneApp := app.NewWithID("org.codeberg.snonux.yomibackfill")
	fyneApp.SetIcon(GetAppIcon())

	a := &Application{
		app:            fyneApp,
		backend:        backend,
		config:         config,
		ctx:            ctx,
		cancel:         cancel,
		selectedPreset: -1,
	}

	a.queue = NewJobQueue(ctx)
	a.queue.SetCallback(a.onJobUpdate)

	a.setupUI()
	return a
}

// setupUI creates the main user interface
func (a *Application) setupUI() {
	a.window = a.app.NewWindow(fmt.Sprintf("yomibackfill v%s", internal.Version))
	a.window.SetIcon(GetAppIcon())
	a.window.Resize(fyne.NewSize(860, 720))

	a.yomitanLabel = widget.NewLabel("Yomitan: checking...")
	pingButton := ttwidget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() { go a.onPing() })
	collectionLabel := widget.NewLabel("Collection: " + a.config.CollectionPath)
	collectionLabel.Truncation = fyne.TextTruncateEllipsis

	header := container.NewBorder(nil, nil, nil,
		container.NewHBox(a.yomitanLabel, pingButton),
		collectionLabel,
	)

	tabs := container.NewAppTabs(
		container.NewTabItemWithIcon("Manual", theme.DocumentCreateIcon(), a.manualTab()),
		container.NewTabItemWithIcon("Presets", theme.ListIcon(), a.presetsTab()),
	)

	a.statusLabel = widget.NewLabel("Ready")
	a.queueStatusLabel = widget.NewLabel("Queue: Empty")
	a.queueStatusLabel.TextStyle = fyne.TextStyle{Italic: true}
	a.cancelButton = ttwidget.NewButtonWithIcon("Cancel", theme.CancelIcon(), a.onCancel)
	a.cancelButton.Importance = widget.DangerImportance
	a.cancelButton.Disable()

	a.logViewer = NewLogViewer()

	statusSection := container.NewVBox(
		widget.NewSeparator(),
		container.NewBorder(nil, nil, nil, a.cancelButton,
			container.NewVBox(a.statusLabel, a.queueStatusLabel)),
		a.logViewer,
	)

	content := container.NewBorder(
		container.NewVBox(header, widget.NewSeparator()),
		statusSection,
		nil, nil,
		tabs,
	)

	// Add the tooltip layer to enable tooltips
	a.window.SetContent(fynetooltip.AddWindowToolTipLayer(content, a.window.Canvas()))

	pingButton.SetToolTip("Check the Yomitan API again")
	a.cancelButton.SetToolTip("Stop the running backfill; finished notes are kept (Esc)")
	a.runButton.SetToolTip("Queue a backfill of the selected deck (Ctrl+Enter)")
	a.runPresetButton.SetToolTip("Queue the selected preset")

	a.window.SetOnClosed(func() {
		a.cancel()
		a.queue.Stop()
		a.logViewer.StopCapture()
	})

	a.setupKeyboardShortcuts()
}

func (a *Application) manualTab() fyne.CanvasObject {
	a.deckSelect = widget.NewSelect(nil, a.onDeckSelected)
	a.deckSelect.PlaceHolder = "Select a deck"
	reloadDecks := ttwidget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() { go a.loadDecks() })
	reloadDecks.SetToolTip("Reload decks from the collection")

	a.expressionSelect = widget.NewSelect(nil, nil)
	a.expressionSelect.PlaceHolder = "Field with the term"
	a.readingSelect = widget.NewSelect([]string{noReading}, nil)
	a.readingSelect.SetSelected(noReading)

	a.targets = NewTargetList(func() { a.window.Canvas().Unfocus() })
	a.replaceCheck = widget.NewCheck("Replace fields that already hold a value", nil)
	a.dryRunCheck = widget.NewCheck("Dry run", nil)

	a.runButton = ttwidget.NewButtonWithIcon("Run", theme.MediaPlayIcon(), a.onRunManual)
	a.runButton.Importance = widget.HighImportance

	form := widget.NewForm(
		widget.NewFormItem("Deck", container.NewBorder(nil, nil, nil, reloadDecks, a.deckSelect)),
		widget.NewFormItem("Expression", a.expressionSelect),
		widget.NewFormItem("Reading", a.readingSelect),
	)

	return container.NewBorder(
		form,
		container.NewHBox(a.replaceCheck, a.dryRunCheck, layout.NewSpacer(), a.runButton),
		nil, nil,
		container.NewVScroll(container.NewBorder(
			widget.NewLabelWithStyle("Fields to fill", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			nil, nil, nil,
			a.targets,
		)),
	)
}

func (a *Application) presetsTab() fyne.CanvasObject {
	a.presetList = widget.NewList(
		func() int { return len(a.presets) },
		func() fyne.CanvasObject { return widget.NewLabel("preset") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(a.presets[id].DisplayName())
		},
	)
	a.presetList.OnSelected = a.onPresetSelected

	a.presetDetails = widget.NewLabel("Select a preset")
	a.presetDetails.Wrapping = fyne.TextWrapWord
	a.presetDryRun = widget.NewCheck("Dry run", nil)

	a.runPresetButton = ttwidget.NewButtonWithIcon("Run preset", theme.MediaPlayIcon(), a.onRunPreset)
	a.runPresetButton.Importance = widget.HighImportance
	a.runPresetButton.Disable()

	reload := ttwidget.NewButtonWithIcon("", theme.ViewRefreshIcon(), a.loadPresets)
	reload.SetToolTip("Reload presets from the config file")

	split := container.NewHSplit(a.presetList, container.NewVScroll(a.presetDetails))
	split.SetOffset(0.35)

	return container.NewBorder(
		nil,
		container.NewHBox(reload, layout.NewSpacer(), a.presetDryRun, a.runPresetButton),
		nil, nil,
		split,
	)
}

// Run starts the GUI application
func (a *Application) Run() {
	if err := a.logViewer.StartCapture(); err != nil {
		a.updateStatus("Output capture failed: " + err.Error())
	}

	go a.onPing()
	go a.loadDecks()
	a.loadPresets()

	a.window.ShowAndRun()
}

func (a *Application) onPing() {
	fyne.Do(func() { a.yomitanLabel.SetText("Yomitan: checking...") })

	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()
	version, err := a.backend.PingVersion(ctx)

	fyne.Do(func() {
		if err != nil {
			a.yomitanLabel.SetText("Yomitan: unreachable at " + a.config.YomitanURL)
			a.yomitanLabel.Importance = widget.DangerImportance
			a.yomitanLabel.Refresh()
			dialog.ShowError(err, a.window)
			return
		}
		a.yomitanLabel.SetText("Yomitan " + version)
		a.yomitanLabel.Importance = widget.SuccessImportance
		a.yomitanLabel.Refresh()
	})
}

func (a *Application) loadDecks() {
	decks, err := a.backend.Decks(a.ctx)
	fyne.Do(func() {
		if err != nil {
			a.showError(err)
			return
		}
		names := make([]string, 0, len(decks))
		for _, d := range decks {
			names = append(names, d.Name)
		}
		sort.Strings(names)
		a.deckSelect.Options = names
		a.deckSelect.Refresh()
		a.updateStatus(fmt.Sprintf("Loaded %d decks", len(names)))
	})
}

func (a *Application) onDeckSelected(deck string) {
	if deck == "" {
		return
	}
	go func() {
		fields, err := a.backend.DeckFields(a.ctx, deck)
		fyne.Do(func() {
			if err != nil {
				a.showError(err)
				return
			}
			a.setFields(fields)
		})
	}()
}

func (a *Application) setFields(fields []string) {
	a.expressionSelect.Options = fields
	if !contains(fields, a.expressionSelect.Selected) {
		a.expressionSelect.ClearSelected()
		if contains(fields, "Expression") {
			a.expressionSelect.SetSelected("Expression")
		}
	}
	a.expressionSelect.Refresh()

	a.readingSelect.Options = append([]string{noReading}, fields...)
	if !contains(a.readingSelect.Options, a.readingSelect.Selected) {
		a.readingSelect.SetSelected(noReading)
	}
	a.readingSelect.Refresh()

	a.targets.SetFields(fields)
	if len(fields) == 0 {
		a.updateStatus("The selected deck has no notes")
	}
}

func (a *Application) loadPresets() {
	presets, err := a.backend.Presets()
	if err != nil {
		a.showError(err)
		return
	}
	a.presets = presets
	a.selectedPreset = -1
	a.presetList.UnselectAll()
	a.presetList.Refresh()
	a.runPresetButton.Disable()
	if len(presets) == 0 {
		a.presetDetails.SetText("No presets found in the config file.")
	} else {
		a.presetDetails.SetText("Select a preset")
	}
}

func (a *Application) onPresetSelected(id widget.ListItemID) {
	if id < 0 || id >= len(a.presets) {
		return
	}
	a.selectedPreset = id
	ps := a.presets[id]
	a.presetDetails.SetText(DescribePreset(ps))
	if ps.Validate() == nil {
		a.runPresetButton.Enable()
	} else {
		a.runPresetButton.Disable()
	}
}

func (a *Application) onRunManual() {
	deck := a.deckSelect.Selected
	if deck == "" {
		a.showError(errors.New("select a deck first"))
		return
	}
	req, err := BuildRequest(a.expressionSelect.Selected, a.readingSelect.Selected, a.targets.Specs(), a.replaceCheck.Checked)
	if err != nil {
		a.showError(err)
		return
	}
	dryRun := a.dryRunCheck.Checked

	a.enqueue(deck, dryRun, func(ctx context.Context) (*backfill.Result, error) {
		return a.backend.BackfillDeck(ctx, deck, req, dryRun)
	})
}

func (a *Application) onRunPreset() {
	if a.selectedPreset < 0 || a.selectedPreset >= len(a.presets) {
		return
	}
	ps := a.presets[a.selectedPreset]
	dryRun := a.presetDryRun.Checked

	a.enqueue(ps.DisplayName(), dryRun, func(ctx context.Context) (*backfill.Result, error) {
		return a.backend.BackfillPreset(ctx, ps, dryRun)
	})
}

func (a *Application) enqueue(label string, dryRun bool, run RunFunc) {
	job := a.queue.Add(label, dryRun, run)
	a.updateStatus(fmt.Sprintf("Queued: %s (#%d)", label, job.ID))
}

func (a *Application) onCancel() {
	if a.queue.CancelCurrent() {
		a.updateStatus("Cancelling...")
	}
}

// onJobUpdate is called from the queue worker
func (a *Application) onJobUpdate(job Job) {
	fyne.Do(func() {
		a.updateQueueStatus()

		switch job.Status {
		case StatusProcessing:
			a.cancelButton.Enable()
			a.updateStatus("Running: " + job.Label)
		case StatusCompleted, StatusFailed, StatusCancelled:
			a.cancelButton.Disable()
			a.updateStatus(fmt.Sprintf("%s: %s", job.Status, job.Label))
			a.showJobResult(job)
		}
	})
}

func (a *Application) showJobResult(job Job) {
	if yomitan.IsUnreachable(job.Error) {
		a.yomitanLabel.SetText("Yomitan: unreachable")
		a.yomitanLabel.Importance = widget.DangerImportance
		a.yomitanLabel.Refresh()
	}
	if job.Error != nil && job.Result == nil {
		a.showError(job.Error)
		return
	}

	title := job.Label
	if job.DryRun {
		title += " (dry run)"
	}
	msg := Summarize(job.Result, job.DryRun)
	if job.Error != nil {
		msg += "\n\n" + StoppedEarly(job.Error)
	}
	dialog.ShowInformation(title, msg, a.window)
}

// updateQueueStatus updates the queue status label
func (a *Application) updateQueueStatus() {
	queued, processing, completed, failed := a.queue.Status()
	if queued+processing+completed+failed == 0 {
		a.queueStatusLabel.SetText("Queue: Empty")
		return
	}
	a.queueStatusLabel.SetText(fmt.Sprintf("Queued: %d | Running: %d | Done: %d | Failed: %d",
		queued, processing, completed, failed))
}

func (a *Application) updateStatus(message string) {
	a.statusLabel.SetText(message)
}

func (a *Application) showError(err error) {
	dialog.ShowError(err, a.window)
	a.updateStatus("Error: " + err.Error())
}

func (a *Application) setupKeyboardShortcuts() {
	a.window.Canvas().AddShortcut(&desktop.CustomShortcut{
		KeyName:  fyne.KeyReturn,
		Modifier: fyne.KeyModifierShortcutDefault,
	}, func(fyne.Shortcut) {
		if !a.runButton.Disabled() {
			a.onRunManual()
		}
	})

	a.window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			a.onCancel()
		}
	})
}

// Summarize renders a run result for the result dialog
func Summarize(r *backfill.Result, dryRun bool) string {
	if r == nil {
		return "Nothing was processed."
	}

	var sb strings.Builder
	switch {
	case dryRun:
		fmt.Fprintf(&sb, "%d notes would be updated.", r.Updated)
	case r.Updated > 0:
		fmt.Fprintf(&sb, "Successfully updated %d notes.", r.Updated)
	default:
		sb.WriteString("No notes were updated.")
	}
	fmt.Fprintf(&sb, "\n\nProcessed: %d\nSkipped: %d\nFailed: %d", r.Processed, r.Skipped, r.Failed)
	if r.MediaWritten > 0 {
		fmt.Fprintf(&sb, "\nMedia files written: %d", r.MediaWritten)
	}
	if r.MediaFailed > 0 {
		fmt.Fprintf(&sb, "\nMedia files failed: %d", r.MediaFailed)
	}
	return sb.String()
}

// StoppedEarly explains why a job ended before its last note
func StoppedEarly(err error) string {
	msg := "Stopped early: " + err.Error()
	if yomitan.IsUnreachable(err) {
		msg += "\n" + unreachableHint
	}
	return msg
}

// DescribePreset renders a preset for the details pane
func DescribePreset(ps preset.Preset) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Deck: %s\nExpression: %s\n", ps.DeckName, ps.ExpressionField)
	if ps.ReadingField != "" {
		fmt.Fprintf(&sb, "Reading: %s\n", ps.ReadingField)
	}
	fmt.Fprintf(&sb, "Replace existing: %t\n\nFields:\n", ps.ReplaceExisting)
	for _, t := range ps.Targets {
		fmt.Fprintf(&sb, "  %s = %s", t.FieldToFill, t.Handlebar)
		if t.ReplaceExisting != nil {
			fmt.Fprintf(&sb, " (replace: %t)", *t.ReplaceExisting)
		}
		sb.WriteString("\n")
	}
	if err := ps.Validate(); err != nil {
		fmt.Fprintf(&sb, "\nCannot run: %v", err)
	}
	return sb.String()
}
