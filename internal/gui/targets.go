package gui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	ttwidget "github.com/dweymouth/fyne-tooltip/widget"

	"codeberg.org/snonux/yomibackfill/internal/backfill"
)

// noReading is the select option for "look up without a reading"
const noReading = "(none)"

// TargetSpec is the plain content of one target row
type TargetSpec struct {
	Field     string
	Handlebar string
	Replace   bool
}

// BuildRequest turns the manual form into a backfill request. A row's
// Replace forces replacement for that field; otherwise the global flag
// applies.
func BuildRequest(expression, reading string, specs []TargetSpec, replace bool) (backfill.Request, error) {
	if reading == noReading {
		reading = ""
	}
	req := backfill.Request{
		ExpressionField: expression,
		ReadingField:    reading,
		Replace:         replace,
	}

	for i, s := range specs {
		field := strings.TrimSpace(s.Field)
		handlebar := strings.TrimSpace(s.Handlebar)
		if field == "" && handlebar == "" {
			continue
		}
		if field == "" || handlebar == "" {
			return backfill.Request{}, fmt.Errorf("row %d needs both a field and a handlebar", i+1)
		}
		t := backfill.Target{Field: field, Handlebar: handlebar}
		if s.Replace {
			t.Replace = backfill.Bool(true)
		}
		req.Targets = append(req.Targets, t)
	}

	if err := req.Validate(); err != nil {
		return backfill.Request{}, err
	}
	return req, nil
}

// HandlebarEntry extends widget.Entry to handle Escape key
type HandlebarEntry struct {
	widget.Entry
	onEscape func()
}

// NewHandlebarEntry creates a single line entry for a Yomitan handlebar
func NewHandlebarEntry() *HandlebarEntry {
	entry := &HandlebarEntry{}
	entry.SetPlaceHolder("{glossary-brief}")
	entry.ExtendBaseWidget(entry)
	return entry
}

// TypedKey handles key events
func (e *HandlebarEntry) TypedKey(key *fyne.KeyEvent) {
	if key.Name == fyne.KeyEscape && e.onEscape != nil {
		e.onEscape()
		return
	}
	e.Entry.TypedKey(key)
}

// SetOnEscape sets the callback for when Escape is pressed
func (e *HandlebarEntry) SetOnEscape(f func()) {
	e.onEscape = f
}

type targetRow struct {
	field     *widget.Select
	handlebar *HandlebarEntry
	replace   *widget.Check
	box       *fyne.Container
}

// TargetList edits the field/handlebar pairs of a manual run
type TargetList struct {
	widget.BaseWidget

	rows     []*targetRow
	fields   []string
	onEscape func()

	list      *fyne.Container
	container *fyne.Container
}

// NewTargetList creates the editor with one empty row
func NewTargetList(onEscape func()) *TargetList {
	l := &TargetList{onEscape: onEscape}
	l.list = container.NewVBox()

	addButton := ttwidget.NewButtonWithIcon("Add field", theme.ContentAddIcon(), func() {
		l.AddRow(TargetSpec{})
	})
	addButton.SetToolTip("Fill one more field")

	l.container = container.NewBorder(nil, container.NewHBox(addButton), nil, nil, l.list)
	l.AddRow(TargetSpec{})

	l.ExtendBaseWidget(l)
	return l
}

// CreateRenderer implements fyne.Widget
func (l *TargetList) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(l.container)
}

// SetFields updates the field names offered by every row
func (l *TargetList) SetFields(fields []string) {
	l.fields = fields
	for _, r := range l.rows {
		r.field.Options = fields
		if !contains(fields, r.field.Selected) {
			r.field.ClearSelected()
		}
		r.field.Refresh()
	}
}

// AddRow appends a row
func (l *TargetList) AddRow(spec TargetSpec) {
	r := &targetRow{
		field:     widget.NewSelect(l.fields, nil),
		handlebar: NewHandlebarEntry(),
		replace:   widget.NewCheck("Replace", nil),
	}
	r.field.PlaceHolder = "Field to fill"
	if spec.Field != "" {
		r.field.SetSelected(spec.Field)
	}
	r.handlebar.SetText(spec.Handlebar)
	r.handlebar.SetOnEscape(l.onEscape)
	r.replace.SetChecked(spec.Replace)

	remove := ttwidget.NewButtonWithIcon("", theme.ContentRemoveIcon(), func() {
		l.removeRow(r)
	})
	remove.SetToolTip("Remove this field")

	r.box = container.NewBorder(nil, nil,
		container.NewGridWrap(fyne.NewSize(200, r.field.MinSize().Height), r.field),
		container.NewHBox(r.replace, remove),
		r.handlebar,
	)

	l.rows = append(l.rows, r)
	l.list.Add(r.box)
}

func (l *TargetList) removeRow(r *targetRow) {
	for i, row := range l.rows {
		if row == r {
			l.rows = append(l.rows[:i], l.rows[i+1:]...)
			break
		}
	}
	l.list.Remove(r.box)
	if len(l.rows) == 0 {
		l.AddRow(TargetSpec{})
	}
}

// Specs returns the content of all rows
func (l *TargetList) Specs() []TargetSpec {
	specs := make([]TargetSpec, 0, len(l.rows))
	for _, r := range l.rows {
		specs = append(specs, TargetSpec{
			Field:     r.field.Selected,
			Handlebar: r.handlebar.Text,
			Replace:   r.replace.Checked,
		})
	}
	return specs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
