package sftpscp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
)

// scp.go speaks the minimal "scp -t"/"scp -f" sink/source protocol
// directly over an exec'd remote command, for hosts that only expose
// an SSH shell with no SFTP subsystem. It supports single-file reads
// and writes only; in this mode every filesystem operation other than
// Pwd, OpenRead, OpenWrite and Finalize returns UnsupportedFeature.

// scpOpenRead runs "scp -qf <path>" and parses the single-file source
// protocol response, returning a stream that reads exactly the file's
// payload bytes.
func (c *Client) scpOpenRead(ctx context.Context, full string) (filetransfer.ReadStream, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, ferrors.New(ferrors.ConnectionFailed, err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, ferrors.New(ferrors.Io, err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, ferrors.New(ferrors.Io, err)
	}

	cmd := fmt.Sprintf("scp -qf %s", shellQuote(full))
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}

	// Signal readiness to receive the source's control line.
	if _, err := stdin.Write([]byte{0}); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}

	r := bufio.NewReader(stdout)
	kind, size, _, err := readSCPControl(r)
	if err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}
	if kind != 'C' {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, fmt.Errorf("unexpected scp control byte %q", kind))
	}

	return &scpReadCloser{
		session: session,
		stdin:   stdin,
		r:       io.LimitReader(r, size),
		raw:     r,
		size:    size,
	}, nil
}

type scpReadCloser struct {
	session *ssh.Session
	stdin   io.WriteCloser
	r       io.Reader
	raw     *bufio.Reader
	size    int64
	read    int64
}

func (s *scpReadCloser) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.read += int64(n)
	return n, err
}

func (s *scpReadCloser) Close() error {
	// ack the data, then consume the trailing status byte.
	s.stdin.Write([]byte{0})
	s.raw.ReadByte()
	s.stdin.Close()
	return s.session.Close()
}

// scpOpenWrite runs "scp -qt <dir>" and sends the single-file sink
// protocol header for base(full), returning a stream whose writes are
// the file payload; Finalize sends the trailing ack and waits for the
// remote status byte.
func (c *Client) scpOpenWrite(ctx context.Context, full string, size int64) (filetransfer.WriteStream, error) {
	dir := full[:strings.LastIndex(full, "/")+1]
	if dir == "" {
		dir = "/"
	}
	name := full[len(dir):]

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, ferrors.New(ferrors.ConnectionFailed, err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, ferrors.New(ferrors.Io, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, ferrors.New(ferrors.Io, err)
	}

	cmd := fmt.Sprintf("scp -qt %s", shellQuote(dir))
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}

	r := bufio.NewReader(stdout)
	if err := readSCPAck(r); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}

	if size < 0 {
		size = 0
	}
	header := fmt.Sprintf("C0644 %d %s\n", size, name)
	if _, err := stdin.Write([]byte(header)); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}
	if err := readSCPAck(r); err != nil {
		session.Close()
		return nil, ferrors.NewPath(ferrors.Protocol, full, err)
	}

	return &scpWriteCloser{session: session, stdin: stdin, r: r}, nil
}

type scpWriteCloser struct {
	session *ssh.Session
	stdin   io.WriteCloser
	r       *bufio.Reader
}

func (s *scpWriteCloser) Write(p []byte) (int, error) { return s.stdin.Write(p) }

// finish sends the trailing ack byte, reads the remote's final status,
// and tears the session down. Callers reach this via Client.Finalize,
// not Close, matching filetransfer.WriteStream's contract.
func (s *scpWriteCloser) finish() error {
	if _, err := s.stdin.Write([]byte{0}); err != nil {
		s.session.Close()
		return ferrors.New(ferrors.Io, err)
	}
	err := readSCPAck(s.r)
	s.stdin.Close()
	s.session.Close()
	if err != nil {
		return ferrors.New(ferrors.Protocol, err)
	}
	return nil
}

// readSCPControl parses one "<kind><mode> <size> <name>\n" control
// line as emitted by "scp -f"'s source side. A status byte (0, or 1/2
// followed by an error message) in front of the line is consumed first
// when present.
func readSCPControl(r *bufio.Reader) (kind byte, size int64, name string, err error) {
	if b, err := r.Peek(1); err == nil && b[0] <= 2 {
		if err := readSCPAck(r); err != nil {
			return 0, 0, "", err
		}
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, 0, "", err
	}
	line = strings.TrimSuffix(line, "\n")
	if len(line) < 2 {
		return 0, 0, "", fmt.Errorf("short scp control line %q", line)
	}
	kind = line[0]
	fields := strings.SplitN(line[1:], " ", 3)
	if len(fields) != 3 {
		return 0, 0, "", fmt.Errorf("malformed scp control line %q", line)
	}
	size, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("malformed scp size in %q: %w", line, err)
	}
	return kind, size, fields[2], nil
}

// readSCPAck reads one scp status byte: 0 is success, 1/2 are
// warning/fatal each followed by a human-readable message line.
func readSCPAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return fmt.Errorf("scp error (code %d): %s", b, strings.TrimSpace(msg))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
