// Package bookmarks implements the bookmark and recents store (spec
// §4.4): named, reusable connection parameters persisted as TOML, with
// the password field optionally sealed via internal/crypto so it never
// sits in plaintext on disk.
//
// Grounded on internal/config's atomic-save/advisory-lock machinery
// (itself adapted from the teacher's internal/config/apiconfig.go) and
// on internal/crypto/encryption.go for sealing.
package bookmarks

import (
	"os"
	"sort"

	"github.com/rescale-labs/termscp/internal/config"
	"github.com/rescale-labs/termscp/internal/crypto"
	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
)

// MaxRecents bounds the FIFO recent-connections list (spec §4.4).
const MaxRecents = 16

// record is the flattened, TOML-friendly persistence shape of a single
// bookmark. filetransfer.ProtocolParams is a tagged variant (only one
// of Generic/S3 is set); TOML has no native sum type, so the fields are
// flattened here and reassembled in toParams/fromParams.
type record struct {
	Protocol string `toml:"protocol"`

	Address  string `toml:"address,omitempty"`
	Port     int    `toml:"port,omitempty"`
	Username string `toml:"username,omitempty"`
	// SealedSecret is the base64 AES-256-CBC ciphertext of the password,
	// present only when the user opted to remember it (spec §4.4).
	SealedSecret string `toml:"sealed_secret,omitempty"`
	FTPSMode     int    `toml:"ftps_mode,omitempty"`
	SSHKeyPath   string `toml:"ssh_key_path,omitempty"`
	UseAgent     bool   `toml:"use_agent,omitempty"`

	Bucket       string `toml:"bucket,omitempty"`
	Region       string `toml:"region,omitempty"`
	Profile      string `toml:"profile,omitempty"`
	Endpoint     string `toml:"endpoint,omitempty"`
	AccessKey    string `toml:"access_key,omitempty"`
	SealedSecret2 string `toml:"sealed_secret_key,omitempty"` // S3 secret key, sealed
	NewPathStyle bool   `toml:"new_path_style,omitempty"`

	EntryDirectory      string `toml:"entry_directory,omitempty"`
	LocalEntryDirectory string `toml:"local_entry_directory,omitempty"`
}

// document is the whole bookmarks.toml document shape.
type document struct {
	Bookmarks map[string]record `toml:"bookmarks"`
	Recents   []record          `toml:"recents"`
}

func protocolToString(p filetransfer.Protocol) string { return p.String() }

func protocolFromString(s string) filetransfer.Protocol {
	switch s {
	case "sftp":
		return filetransfer.ProtocolSFTP
	case "scp":
		return filetransfer.ProtocolSCP
	case "ftp":
		return filetransfer.ProtocolFTP
	case "ftps":
		return filetransfer.ProtocolFTPS
	case "s3":
		return filetransfer.ProtocolS3
	default:
		return filetransfer.ProtocolSFTP
	}
}

// fromParams flattens params into a record, sealing the password/secret
// key if rememberSecret is set. A seal failure is reported to the
// caller rather than silently storing the cleartext.
func fromParams(params filetransfer.FileTransferParams, rememberSecret bool) (record, error) {
	r := record{
		Protocol:            protocolToString(params.Protocol),
		EntryDirectory:      params.EntryDirectory,
		LocalEntryDirectory: params.LocalEntryDirectory,
	}
	switch params.Protocol {
	case filetransfer.ProtocolS3:
		if params.S3 == nil {
			return record{}, ferrors.New(ferrors.BadAddress, nil)
		}
		r.Bucket = params.S3.Bucket
		r.Region = params.S3.Region
		r.Profile = params.S3.Profile
		r.Endpoint = params.S3.Endpoint
		r.AccessKey = params.S3.AccessKey
		r.NewPathStyle = params.S3.NewPathStyle
		if rememberSecret && params.S3.SecretKey != "" {
			sealed, err := encryption.Seal(params.S3.SecretKey)
			if err != nil {
				return record{}, err
			}
			r.SealedSecret2 = sealed
		}
	default:
		if params.Generic == nil {
			return record{}, ferrors.New(ferrors.BadAddress, nil)
		}
		r.Address = params.Generic.Address
		r.Port = params.Generic.Port
		r.Username = params.Generic.Username
		r.FTPSMode = int(params.Generic.FTPSMode)
		r.SSHKeyPath = params.Generic.SSHKeyPath
		r.UseAgent = params.Generic.UseAgent
		if rememberSecret && params.Generic.Secret != "" {
			sealed, err := encryption.Seal(params.Generic.Secret)
			if err != nil {
				return record{}, err
			}
			r.SealedSecret = sealed
		}
	}
	return r, nil
}

// toParams reassembles a record into FileTransferParams, unsealing any
// stored secret. A SealFailure while unsealing is surfaced to the
// caller but does not destroy the bookmark (spec §7): the caller
// decides whether to prompt for the password instead.
func toParams(r record) (filetransfer.FileTransferParams, error) {
	proto := protocolFromString(r.Protocol)
	params := filetransfer.FileTransferParams{
		ProtocolParams: filetransfer.ProtocolParams{Protocol: proto},
		EntryDirectory:      r.EntryDirectory,
		LocalEntryDirectory: r.LocalEntryDirectory,
	}
	var unsealErr error
	if proto == filetransfer.ProtocolS3 {
		s3 := &filetransfer.S3Params{
			Bucket:       r.Bucket,
			Region:       r.Region,
			Profile:      r.Profile,
			Endpoint:     r.Endpoint,
			AccessKey:    r.AccessKey,
			NewPathStyle: r.NewPathStyle,
		}
		if r.SealedSecret2 != "" {
			secret, err := encryption.Unseal(r.SealedSecret2)
			if err != nil {
				unsealErr = err
			} else {
				s3.SecretKey = secret
			}
		}
		params.S3 = s3
	} else {
		g := &filetransfer.GenericParams{
			Address:    r.Address,
			Port:       r.Port,
			Username:   r.Username,
			FTPSMode:   filetransfer.FTPSMode(r.FTPSMode),
			SSHKeyPath: r.SSHKeyPath,
			UseAgent:   r.UseAgent,
		}
		if r.SealedSecret != "" {
			secret, err := encryption.Unseal(r.SealedSecret)
			if err != nil {
				unsealErr = err
			} else {
				g.Secret = secret
			}
		}
		params.Generic = g
	}
	return params, unsealErr
}

// Store persists bookmarks and recents as TOML, reusing the same
// atomic-rewrite and advisory-lock primitives as Config/Theme.
type Store struct {
	path string
}

// NewStore creates a store rooted at the default platform config
// directory's bookmarks.toml.
func NewStore() (*Store, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, err
	}
	return &Store{path: config.BookmarksPath(dir)}, nil
}

// NewStoreAt creates a store at an explicit file path, used by tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (document, error) {
	doc := document{Bookmarks: map[string]record{}}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return doc, nil
	}
	if err := config.LoadTOML(s.path, &doc); err != nil {
		if _, qerr := config.QuarantineCorrupt(s.path); qerr != nil {
			return document{}, ferrors.New(ferrors.ConfigCorrupt, err)
		}
		doc = document{Bookmarks: map[string]record{}}
	}
	if doc.Bookmarks == nil {
		doc.Bookmarks = map[string]record{}
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	lock, err := config.Lock(s.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return config.SaveAtomic(s.path, &doc)
}

// Save stores params under name. If rememberSecret is false, any
// password/secret key is omitted from the persisted record entirely
// (spec §4.4: remembering the secret is opt-in per bookmark).
func (s *Store) Save(name string, params filetransfer.FileTransferParams, rememberSecret bool) error {
	rec, err := fromParams(params, rememberSecret)
	if err != nil {
		return err
	}
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Bookmarks[name] = rec
	return s.save(doc)
}

// Load returns the connection parameters for a named bookmark. If the
// stored secret could not be unsealed, params is still returned
// (Secret/SecretKey left empty) alongside a SealFailure error so the
// caller can prompt for the password instead of failing the lookup.
func (s *Store) Load(name string) (filetransfer.FileTransferParams, error) {
	doc, err := s.load()
	if err != nil {
		return filetransfer.FileTransferParams{}, err
	}
	rec, ok := doc.Bookmarks[name]
	if !ok {
		return filetransfer.FileTransferParams{}, ferrors.NewPath(ferrors.NotFound, name, nil)
	}
	return toParams(rec)
}

// List returns bookmark names in sorted order.
func (s *Store) List() ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Bookmarks))
	for name := range doc.Bookmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a named bookmark. Deleting an unknown name is a no-op.
func (s *Store) Delete(name string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Bookmarks[name]; !ok {
		return nil
	}
	delete(doc.Bookmarks, name)
	return s.save(doc)
}

// PushRecent records params as the most recent connection, evicting the
// oldest entry once the list exceeds MaxRecents (spec §4.4). Recent
// entries never remember secrets: a recent is a convenience for
// re-selecting an address, not a saved credential.
func (s *Store) PushRecent(params filetransfer.FileTransferParams) error {
	rec, err := fromParams(params, false)
	if err != nil {
		return err
	}
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Recents = append([]record{rec}, doc.Recents...)
	if len(doc.Recents) > MaxRecents {
		doc.Recents = doc.Recents[:MaxRecents]
	}
	return s.save(doc)
}

// Recents returns the recent-connections FIFO, most recent first.
func (s *Store) Recents() ([]filetransfer.FileTransferParams, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]filetransfer.FileTransferParams, 0, len(doc.Recents))
	for _, rec := range doc.Recents {
		p, _ := toParams(rec) // unseal failure is moot: recents never carry secrets
		out = append(out, p)
	}
	return out, nil
}
