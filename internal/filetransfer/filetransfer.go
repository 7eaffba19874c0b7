// Package filetransfer defines the capability surface every transport
// backend (SFTP, SCP, FTP, FTPS, S3) must satisfy identically, so the
// transfer engine and activities can treat any two endpoints (one of
// which may be the local host) uniformly. See spec §4.1.
package filetransfer

import (
	"context"
	"io"

	"github.com/rescale-labs/termscp/internal/fsentry"
)

// Protocol names the wire protocol a ProtocolParams selects.
type Protocol int

const (
	ProtocolSFTP Protocol = iota
	ProtocolSCP
	ProtocolFTP
	ProtocolFTPS
	ProtocolS3
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSFTP:
		return "sftp"
	case ProtocolSCP:
		return "scp"
	case ProtocolFTP:
		return "ftp"
	case ProtocolFTPS:
		return "ftps"
	case ProtocolS3:
		return "s3"
	default:
		return "unknown"
	}
}

// DefaultPort returns the conventional port for a protocol (spec §6).
func (p Protocol) DefaultPort() int {
	switch p {
	case ProtocolSFTP, ProtocolSCP:
		return 22
	case ProtocolFTP, ProtocolFTPS:
		return 21
	case ProtocolS3:
		return 443
	default:
		return 0
	}
}

// FTPSMode distinguishes implicit vs explicit TLS negotiation for FTPS.
type FTPSMode int

const (
	FTPSNone FTPSMode = iota
	FTPSImplicit
	FTPSExplicit
)

// GenericParams covers SFTP, SCP, FTP and FTPS connection parameters.
type GenericParams struct {
	Address  string
	Port     int
	Username string
	Secret   string // password, or passphrase for a key file
	FTPSMode FTPSMode

	// SSH-specific (SFTP/SCP only); all optional.
	SSHKeyPath string
	UseAgent   bool
}

// S3Params covers S3-compatible object storage connection parameters.
type S3Params struct {
	Bucket       string
	Region       string
	Profile      string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	NewPathStyle bool
}

// ProtocolParams is a tagged variant: exactly one of Generic or S3 is set,
// selected by Protocol.
type ProtocolParams struct {
	Protocol Protocol
	Generic  *GenericParams
	S3       *S3Params
}

// FileTransferParams is a ProtocolParams plus the optional working
// directories the session should start in.
type FileTransferParams struct {
	ProtocolParams
	EntryDirectory      string
	LocalEntryDirectory string
}

// WelcomeBanner is whatever greeting text a backend returns on connect.
type WelcomeBanner = string

// WriteStream is a sink that must be closed via Finalize, not Close,
// since backends may need to do post-processing (multipart complete,
// handle close, reply-code sync) before the write is durable.
type WriteStream = io.Writer

// ReadStream is a source readable until io.EOF.
type ReadStream = io.ReadCloser

// FileTransfer is the capability surface every transport backend and the
// local host implement identically. All operations are synchronous;
// callers that need cancellation pass a context and the backend is
// expected to check it at natural suspension points (spec §5).
type FileTransfer interface {
	// Connect establishes the session. Idempotent if already connected.
	Connect(ctx context.Context) (WelcomeBanner, error)

	// Disconnect tears the session down best-effort. No error is
	// surfaced once the session is considered dead.
	Disconnect()

	// IsConnected reports cached liveness; may be stale between calls.
	IsConnected() bool

	Pwd(ctx context.Context) (string, error)
	Cd(ctx context.Context, path string) (string, error)

	ListDir(ctx context.Context, path string) ([]fsentry.Entry, error)
	Stat(ctx context.Context, path string) (fsentry.Entry, error)
	Exists(ctx context.Context, path string) (bool, error)

	Mkdir(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	RemoveDir(ctx context.Context, path string) error
	RemoveDirAll(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error

	// Symlink is optional; backends that cannot create links return
	// an UnsupportedFeature error.
	Symlink(ctx context.Context, link, target string) error

	// Chmod/Chown are optional; unsupported backends return
	// UnsupportedFeature.
	Chmod(ctx context.Context, path string, mode uint32) error
	Chown(ctx context.Context, path string, uid, gid int) error

	// OpenRead returns a stream readable until EOF. For backends that
	// cannot stream directly (S3), the implementation may buffer the
	// object into a temporary file.
	OpenRead(ctx context.Context, path string) (ReadStream, error)

	// OpenWrite returns a sink. size, if >= 0, is a hint used for
	// progress display and, for some backends, pre-allocation.
	OpenWrite(ctx context.Context, path string, size int64) (WriteStream, error)

	// Finalize closes a stream opened by OpenWrite, performing any
	// backend-specific commit (S3 uploads the buffered temporary file in
	// one PutObject, FTP waits for the store to finish, SFTP and the
	// local host close the handle, SCP sends its trailing ack). A failure
	// is returned to the caller as the backend's error; no backend
	// attempts a rollback of what was already written.
	Finalize(ctx context.Context, stream WriteStream) error
}
