package ftpx

import (
	"errors"
	"testing"

	"github.com/rescale-labs/termscp/internal/ferrors"
)

type fakeFTPErr struct {
	code int
}

func (e *fakeFTPErr) Error() string { return "ftp error" }
func (e *fakeFTPErr) Code() int     { return e.code }

func TestWrapFTPErrMapsReplyCodes(t *testing.T) {
	cases := []struct {
		code int
		want ferrors.Kind
	}{
		{550, ferrors.NotFound},
		{530, ferrors.AuthFailed},
		{553, ferrors.NameConflict},
		{421, ferrors.Io},
	}
	for _, tc := range cases {
		err := wrapFTPErr("/foo", &fakeFTPErr{code: tc.code})
		if !ferrors.Is(err, tc.want) {
			t.Errorf("code %d: got %v, want Kind %v", tc.code, err, tc.want)
		}
	}
}

func TestWrapFTPErrNilIsNil(t *testing.T) {
	if err := wrapFTPErr("/foo", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrapFTPErrUncoded(t *testing.T) {
	err := wrapFTPErr("/foo", errors.New("boom"))
	if !ferrors.Is(err, ferrors.Io) {
		t.Errorf("expected Io kind for uncoded error, got %v", err)
	}
}

func TestClientResolve(t *testing.T) {
	c := &Client{cwd: "/home/user"}
	if got := c.resolve("sub/dir"); got != "/home/user/sub/dir" {
		t.Errorf("resolve(relative) = %q", got)
	}
	if got := c.resolve("/abs/path"); got != "/abs/path" {
		t.Errorf("resolve(absolute) = %q", got)
	}
}
