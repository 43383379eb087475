package conversation

import (
	"context"
	"io"
	"strings"
)

// Action is a button press or command, as opposed to free text.
type Action string

const (
	ActionNone        Action = ""
	ActionMenu        Action = "menu"
	ActionCancel      Action = "cancel"
	ActionWhoAmI      Action = "whoami"
	ActionNewCall     Action = "new"
	ActionRepeatCall  Action = "repeat"
	ActionConfirm     Action = "confirm"
	ActionReject      Action = "reject"
	ActionSkip        Action = "skip"
	ActionToday       Action = "today"
	ActionLedger      Action = "ledger"
	ActionAddManager  Action = "add_manager"
	ActionImport      Action = "import"
	ActionPickManager Action = "pick_manager"
)

// Document is an uploaded file. Open is called at most once.
type Document struct {
	FileName string
	Size     int64
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Input is one inbound update, already stripped of transport details.
type Input struct {
	ChatID   int64
	UserID   int64
	Text     string
	Action   Action
	Arg      string
	Document *Document
}

// Button is an inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Reply is what the bot answers with. Text is HTML.
type Reply struct {
	Text    string
	Buttons [][]Button
}

// CallbackData encodes an action for an inline button.
func CallbackData(a Action, arg string) string {
	if arg == "" {
		return string(a)
	}
	return string(a) + ":" + arg
}

// ParseCallback decodes data produced by CallbackData.
func ParseCallback(data string) (Action, string) {
	action, arg, _ := strings.Cut(data, ":")
	return Action(action), arg
}

func button(text string, a Action, arg string) Button {
	return Button{Text: text, Data: CallbackData(a, arg)}
}
