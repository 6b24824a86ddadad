package statusview

import (
	"strings"

	"github.com/fatih/color"

	testsysv1alpha1 "github.com/bottlerocket-test-system/testsys/api/v1alpha1"
)

const (
	newLine      = "\n"
	emptySpace   = "    "
	middleItem   = "├── " // ├──
	continueItem = "│   "           // │
	lastItem     = "└── " // └──
)

// Status strings a Node can carry, covering both TaskState values and the
// engine-level states (NoStatus, ResourceError, WaitingOnDependency) that have
// no TaskState equivalent.
const (
	StatusUnknown        = string(testsysv1alpha1.TaskStateUnknown)
	StatusRunning        = string(testsysv1alpha1.TaskStateRunning)
	StatusCompleted      = string(testsysv1alpha1.TaskStateCompleted)
	StatusError          = string(testsysv1alpha1.TaskStateError)
	StatusNoStatus       = "NoStatus"
	StatusResourceError  = "ResourceError"
	StatusDependencyWait = "WaitingOnDependency"
)

// Renderer draws a Node tree as indented, optionally colored text.
type Renderer struct {
	useColor bool
	green    *color.Color
	yellow   *color.Color
	red      *color.Color
	gray     *color.Color
	magenta  *color.Color
	cyan     *color.Color
}

// NewRenderer creates a Renderer. useColor is normally !noColorFlag.
func NewRenderer(useColor bool) *Renderer {
	return &Renderer{
		useColor: useColor,
		green:    color.New(color.FgGreen),
		yellow:   color.New(color.FgYellow),
		red:      color.New(color.FgRed),
		gray:     color.New(color.FgHiBlack),
		magenta:  color.New(color.FgMagenta),
		cyan:     color.New(color.FgCyan),
	}
}

// Render draws n and its descendants.
func (r *Renderer) Render(n *Node) string {
	var sb strings.Builder
	r.renderTextInline(&sb, n.Text(), n.Status())
	sb.WriteString(newLine)

	items := n.Items()
	for i, child := range items {
		r.renderChild(&sb, child, nil, i == len(items)-1)
	}
	return sb.String()
}

func (r *Renderer) renderChild(sb *strings.Builder, n *Node, spaces []bool, isLast bool) {
	for _, space := range spaces {
		if space {
			sb.WriteString(emptySpace)
		} else {
			sb.WriteString(continueItem)
		}
	}

	if isLast {
		sb.WriteString(lastItem)
	} else {
		sb.WriteString(middleItem)
	}

	r.renderTextInline(sb, n.Text(), n.Status())
	sb.WriteString(newLine)

	newSpaces := append(append([]bool{}, spaces...), isLast)
	items := n.Items()
	for i, child := range items {
		r.renderChild(sb, child, newSpaces, i == len(items)-1)
	}
}

func (r *Renderer) renderTextInline(sb *strings.Builder, text, status string) {
	sb.WriteString(text)
	if status != "" {
		sb.WriteString(" ")
		r.renderStatus(sb, status)
	}
}

func (r *Renderer) renderStatus(sb *strings.Builder, status string) {
	statusText := "[" + status + "]"

	if !r.useColor {
		sb.WriteString(statusText)
		return
	}

	switch status {
	case StatusCompleted:
		sb.WriteString(r.green.Sprint(statusText))
	case StatusRunning:
		sb.WriteString(r.yellow.Sprint(statusText))
	case StatusError, StatusResourceError:
		sb.WriteString(r.red.Sprint(statusText))
	case StatusUnknown, StatusNoStatus:
		sb.WriteString(r.gray.Sprint(statusText))
	case StatusDependencyWait:
		sb.WriteString(r.magenta.Sprint(statusText))
	default:
		sb.WriteString(r.cyan.Sprint(statusText))
	}
}

// RenderDependency formats a dependency reference shown under a Test node.
func RenderDependency(name string, isResource bool) string {
	if isResource {
		return "requires resource: " + name
	}
	return "depends on test: " + name
}
