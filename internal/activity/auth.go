package activity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/filetransfer/ftpx"
	"github.com/rescale-labs/termscp/internal/filetransfer/s3x"
	"github.com/rescale-labs/termscp/internal/filetransfer/sftpscp"
	"github.com/rescale-labs/termscp/internal/tui"
)

// authMsg is the set of messages the Auth activity's form components can
// emit, mirroring the field-to-field blur messages of the original
// termscp auth form (_examples/original_source/src/ui/activities/
// auth/components/form.rs): Connect on Enter from any field, blur
// messages moving focus, and field-specific value changes.
type authMsg int

const (
	msgNone authMsg = iota
	msgConnect
	msgFocusNext
	msgFocusPrev
	msgSaveBookmark
	msgDeleteBookmark
	msgLoadBookmark
	msgQuit
)

// authField names one editable text field of the params form. The
// protocol radio is handled separately since Left/Right cycle it
// instead of typing characters into it.
type authField int

const (
	fieldAddress authField = iota
	fieldPort
	fieldUsername
	fieldPassword
	fieldS3Bucket
	fieldS3Region
	fieldS3Profile
)

// authFormState holds the in-progress field values, editable with the
// decoded keystrokes from tui.InputSource (spec §4.3 "form with fields
// {protocol (radio), address, port (1..65535), username, password, plus
// S3 {bucket, region, profile}}").
type authFormState struct {
	protocol filetransfer.Protocol
	values   map[authField]string
	focus    authField
	lastMsg  authMsg
	connectErr error
	bookmarkNames []string
	selectedBookmark int
}

func newAuthFormState() *authFormState {
	return &authFormState{
		protocol: filetransfer.ProtocolSFTP,
		values:   map[authField]string{fieldPort: "22"},
	}
}

// textComponent is a tui.Component wrapping one editable authField. It
// matches the teacher's field-to-field Tab/Up/Down blur pattern from
// form.rs: Tab/Down moves focus forward, Up moves it back, Enter always
// triggers Connect.
type textComponent struct {
	field authField
	state *authFormState
}

func (c *textComponent) Handle(ev tui.Event) []tui.Message {
	if ev.Kind != tui.EventKey {
		return nil
	}
	switch ev.Key.Code {
	case tui.KeyEnter:
		return []tui.Message{msgConnect}
	case tui.KeyTab, tui.KeyDown:
		return []tui.Message{msgFocusNext}
	case tui.KeyShiftTab, tui.KeyUp:
		return []tui.Message{msgFocusPrev}
	case tui.KeyBackspace:
		v := c.state.values[c.field]
		if len(v) > 0 {
			c.state.values[c.field] = v[:len(v)-1]
		}
		return nil
	case tui.KeyRune:
		c.state.values[c.field] += string(ev.Key.Rune)
		return nil
	case tui.KeyCtrlC, tui.KeyEsc:
		return []tui.Message{msgQuit}
	}
	return nil
}

// protocolComponent wraps the protocol radio: Left/Right cycle choices,
// matching ProtocolRadio in form.rs.
type protocolComponent struct {
	state *authFormState
}

var protocolChoices = []filetransfer.Protocol{
	filetransfer.ProtocolSFTP,
	filetransfer.ProtocolSCP,
	filetransfer.ProtocolFTP,
	filetransfer.ProtocolFTPS,
	filetransfer.ProtocolS3,
}

func (c *protocolComponent) Handle(ev tui.Event) []tui.Message {
	if ev.Kind != tui.EventKey {
		return nil
	}
	idx := protocolIndex(c.state.protocol)
	switch ev.Key.Code {
	case tui.KeyLeft:
		idx = (idx - 1 + len(protocolChoices)) % len(protocolChoices)
		c.state.protocol = protocolChoices[idx]
	case tui.KeyRight:
		idx = (idx + 1) % len(protocolChoices)
		c.state.protocol = protocolChoices[idx]
	case tui.KeyEnter:
		return []tui.Message{msgConnect}
	case tui.KeyTab, tui.KeyDown:
		return []tui.Message{msgFocusNext}
	case tui.KeyShiftTab, tui.KeyUp:
		return []tui.Message{msgFocusPrev}
	case tui.KeyCtrlC, tui.KeyEsc:
		return []tui.Message{msgQuit}
	}
	return nil
}

func protocolIndex(p filetransfer.Protocol) int {
	for i, c := range protocolChoices {
		if c == p {
			return i
		}
	}
	return 0
}

// bookmarkComponent handles the bookmarks pane (spec §4.3 "Tab moves
// focus across sub-forms (params form <-> bookmarks pane <-> recents
// pane)"). 's' saves, 'd' deletes, Enter loads.
type bookmarkComponent struct {
	state *authFormState
}

func (c *bookmarkComponent) Handle(ev tui.Event) []tui.Message {
	if ev.Kind != tui.EventKey {
		return nil
	}
	switch ev.Key.Code {
	case tui.KeyUp:
		if c.state.selectedBookmark > 0 {
			c.state.selectedBookmark--
		}
	case tui.KeyDown:
		if c.state.selectedBookmark < len(c.state.bookmarkNames)-1 {
			c.state.selectedBookmark++
		}
	case tui.KeyEnter:
		return []tui.Message{msgLoadBookmark}
	case tui.KeyTab:
		return []tui.Message{msgFocusNext}
	case tui.KeyShiftTab:
		return []tui.Message{msgFocusPrev}
	case tui.KeyRune:
		switch ev.Key.Rune {
		case 's':
			return []tui.Message{msgSaveBookmark}
		case 'd':
			return []tui.Message{msgDeleteBookmark}
		}
	case tui.KeyCtrlC, tui.KeyEsc:
		return []tui.Message{msgQuit}
	}
	return nil
}

// AuthActivity is the spec §4.3 "Auth" top-level activity: it builds
// FileTransferParams from a form, validates, and transitions to
// FileTransfer on a successful connection attempt.
type AuthActivity struct {
	mgr    *Manager
	state  *authFormState
	prefill filetransfer.FileTransferParams
}

const bookmarksFocusName = "bookmarks"

// NewAuthActivity builds the Auth activity, prefilling the form from
// prefill when it carries any params. Manager.Run starts Auth with empty
// params (a CLI address, including a -b bookmark, goes straight to
// FileTransfer), so from there the form starts at its defaults.
func NewAuthActivity(mgr *Manager, prefill filetransfer.FileTransferParams) *AuthActivity {
	st := newAuthFormState()
	if prefill.Protocol != 0 || prefill.Generic != nil || prefill.S3 != nil {
		applyParamsToForm(st, prefill)
	}
	return &AuthActivity{mgr: mgr, state: st, prefill: prefill}
}

func applyParamsToForm(st *authFormState, params filetransfer.FileTransferParams) {
	st.protocol = params.Protocol
	if params.Generic != nil {
		st.values[fieldAddress] = params.Generic.Address
		if params.Generic.Port != 0 {
			st.values[fieldPort] = strconv.Itoa(params.Generic.Port)
		}
		st.values[fieldUsername] = params.Generic.Username
		st.values[fieldPassword] = params.Generic.Secret
	}
	if params.S3 != nil {
		st.values[fieldS3Bucket] = params.S3.Bucket
		st.values[fieldS3Region] = params.S3.Region
		st.values[fieldS3Profile] = params.S3.Profile
	}
}

// Run drives the Auth activity's cooperative event loop (spec §4.3)
// until Connect succeeds (transitioning to FileTransfer) or the user
// quits (transitioning to Terminate).
func (a *AuthActivity) Run(ctx context.Context) NextActivity {
	names, _ := a.mgr.Bookmarks.List()
	a.state.bookmarkNames = names

	disp := tui.NewDispatcher(tui.NewFocusChain(
		"protocol", "address", "port", "username", "password",
		"s3bucket", "s3region", "s3profile", bookmarksFocusName,
	))
	disp.Register("protocol", &protocolComponent{state: a.state})
	disp.Register("address", &textComponent{field: fieldAddress, state: a.state})
	disp.Register("port", &textComponent{field: fieldPort, state: a.state})
	disp.Register("username", &textComponent{field: fieldUsername, state: a.state})
	disp.Register("password", &textComponent{field: fieldPassword, state: a.state})
	disp.Register("s3bucket", &textComponent{field: fieldS3Bucket, state: a.state})
	disp.Register("s3region", &textComponent{field: fieldS3Region, state: a.state})
	disp.Register("s3profile", &textComponent{field: fieldS3Profile, state: a.state})
	disp.Register(bookmarksFocusName, &bookmarkComponent{state: a.state})

	for {
		ev := a.mgr.poll()
		msgs := disp.Dispatch(ev)
		for _, m := range msgs {
			switch m.(authMsg) {
			case msgFocusNext:
				disp.Focus().Next()
			case msgFocusPrev:
				disp.Focus().Prev()
			case msgQuit:
				return NextActivity{Kind: KindTerminate, ExitCode: 0}
			case msgLoadBookmark:
				a.loadSelectedBookmark()
			case msgSaveBookmark:
				a.saveCurrentAsBookmark()
			case msgDeleteBookmark:
				a.deleteSelectedBookmark()
			case msgConnect:
				if next, ok := a.tryConnect(ctx); ok {
					return next
				}
			}
		}
	}
}

// buildParams validates the form per spec §4.3 ("validate: non-empty
// address; port in range; for S3, bucket non-empty") and assembles
// FileTransferParams.
func (a *AuthActivity) buildParams() (filetransfer.FileTransferParams, error) {
	st := a.state
	params := filetransfer.FileTransferParams{
		ProtocolParams: filetransfer.ProtocolParams{Protocol: st.protocol},
	}

	if st.protocol == filetransfer.ProtocolS3 {
		bucket := st.values[fieldS3Bucket]
		if bucket == "" {
			return params, ferrors.New(ferrors.BadAddress, fmt.Errorf("bucket name is required"))
		}
		params.S3 = &filetransfer.S3Params{
			Bucket:  bucket,
			Region:  st.values[fieldS3Region],
			Profile: st.values[fieldS3Profile],
		}
		return params, nil
	}

	address := st.values[fieldAddress]
	if address == "" {
		return params, ferrors.New(ferrors.BadAddress, fmt.Errorf("address is required"))
	}
	portStr := st.values[fieldPort]
	port := st.protocol.DefaultPort()
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return params, ferrors.New(ferrors.BadAddress, fmt.Errorf("port must be in 1..65535"))
		}
		port = p
	}
	ftpsMode := filetransfer.FTPSNone
	if st.protocol == filetransfer.ProtocolFTPS {
		ftpsMode = filetransfer.FTPSExplicit
	}
	params.Generic = &filetransfer.GenericParams{
		Address:  address,
		Port:     port,
		Username: st.values[fieldUsername],
		Secret:   st.values[fieldPassword],
		FTPSMode: ftpsMode,
	}
	return params, nil
}

// tryConnect validates the form, dials the selected backend, and on
// success pushes a recent-connection entry and transitions to
// FileTransfer. On failure it records the error in form state for the
// view to show as a banner and stays in Auth (spec §7 "Unhandled errors
// at the activity level are shown as modal banners; the activity stays
// alive").
func (a *AuthActivity) tryConnect(ctx context.Context) (NextActivity, bool) {
	params, err := a.buildParams()
	if err != nil {
		a.state.connectErr = err
		return NextActivity{}, false
	}

	backend, err := DialBackend(params)
	if err != nil {
		a.state.connectErr = err
		return NextActivity{}, false
	}
	if _, err := backend.Connect(ctx); err != nil {
		a.state.connectErr = err
		return NextActivity{}, false
	}
	backend.Disconnect()

	_ = a.mgr.Bookmarks.PushRecent(params)
	a.state.connectErr = nil
	return NextActivity{Kind: KindFileTransfer, Params: params}, true
}

func (a *AuthActivity) loadSelectedBookmark() {
	if a.state.selectedBookmark < 0 || a.state.selectedBookmark >= len(a.state.bookmarkNames) {
		return
	}
	name := a.state.bookmarkNames[a.state.selectedBookmark]
	params, err := a.mgr.Bookmarks.Load(name)
	if err != nil && !ferrors.Is(err, ferrors.SealFailure) {
		a.state.connectErr = err
		return
	}
	applyParamsToForm(a.state, params)
	if ferrors.Is(err, ferrors.SealFailure) {
		// spec §7: clear the field, don't destroy the bookmark.
		a.state.values[fieldPassword] = ""
		a.state.connectErr = err
	}
}

func (a *AuthActivity) deleteSelectedBookmark() {
	if a.state.selectedBookmark < 0 || a.state.selectedBookmark >= len(a.state.bookmarkNames) {
		return
	}
	name := a.state.bookmarkNames[a.state.selectedBookmark]
	if err := a.mgr.Bookmarks.Delete(name); err == nil {
		a.state.bookmarkNames, _ = a.mgr.Bookmarks.List()
		if a.state.selectedBookmark >= len(a.state.bookmarkNames) {
			a.state.selectedBookmark = len(a.state.bookmarkNames) - 1
		}
	}
}

// saveCurrentAsBookmark saves the current form's params under the
// address (the bucket, for S3) as the bookmark name, remembering the
// sealed password (spec
// §4.3 "save-current (prompts for name and whether to save the
// password sealed)"; the prompt-for-name sub-dialog is the view's
// concern — here the name defaults to the address, matching the CLI's
// -b/--address-as-bookmark behavior for a one-shot save).
func (a *AuthActivity) saveCurrentAsBookmark() {
	params, err := a.buildParams()
	if err != nil {
		a.state.connectErr = err
		return
	}
	var name string
	if params.Protocol == filetransfer.ProtocolS3 {
		name = params.S3.Bucket
	} else {
		name = params.Generic.Address
	}
	if err := a.mgr.Bookmarks.Save(name, params, true); err == nil {
		a.state.bookmarkNames, _ = a.mgr.Bookmarks.List()
	}
}

// DialBackend constructs the FileTransfer implementation selected by
// params.Protocol. This is the composition root for the three transport
// adapter packages, which cover the five protocols (spec §4.1): activity
// is the only package allowed to import
// all of sftpscp/ftpx/s3x, since filetransfer itself must stay
// backend-agnostic.
func DialBackend(params filetransfer.FileTransferParams) (filetransfer.FileTransfer, error) {
	switch params.Protocol {
	case filetransfer.ProtocolSFTP:
		return sftpscp.New(*params.Generic, sftpscp.ModeSFTP), nil
	case filetransfer.ProtocolSCP:
		return sftpscp.New(*params.Generic, sftpscp.ModeSCP), nil
	case filetransfer.ProtocolFTP, filetransfer.ProtocolFTPS:
		return ftpx.New(*params.Generic), nil
	case filetransfer.ProtocolS3:
		return s3x.New(*params.S3), nil
	default:
		return nil, ferrors.New(ferrors.BadAddress, fmt.Errorf("unknown protocol"))
	}
}
