package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
)

// addressPattern decodes spec §6's address grammar:
//
//	[protocol://][username[:password]@]host[:port][/remote_dir]
//
// Grounded on the original termscp's utils::parser::parse_remote_opt,
// re-expressed as a single anchored regex in the Go idiom (the teacher's
// own CLI layer has no equivalent since rescale-int's remotes are
// configured, not addressed on the command line).
var addressPattern = regexp.MustCompile(
	`^(?:([a-zA-Z0-9]+)://)?` + // 1: protocol
		`(?:([^:@/]+)(?::([^@/]*))?@)?` + // 2: username, 3: password
		`([^:/]+)` + // 4: host
		`(?::(\d+))?` + // 5: port
		`(/.*)?$`, // 6: remote dir
)

var protocolNames = map[string]filetransfer.Protocol{
	"sftp": filetransfer.ProtocolSFTP,
	"scp":  filetransfer.ProtocolSCP,
	"ftp":  filetransfer.ProtocolFTP,
	"ftps": filetransfer.ProtocolFTPS,
	"s3":   filetransfer.ProtocolS3,
}

// ParseAddress parses a CLI address argument into connection params
// (spec §6). S3 addresses use the bucket name as host and leave
// Generic nil; every other protocol populates Generic.
func ParseAddress(raw string) (filetransfer.FileTransferParams, error) {
	m := addressPattern.FindStringSubmatch(raw)
	if m == nil {
		return filetransfer.FileTransferParams{}, ferrors.New(ferrors.BadAddress, fmt.Errorf("malformed address %q", raw))
	}

	protoStr, username, password, host, portStr, remoteDir := m[1], m[2], m[3], m[4], m[5], m[6]
	if host == "" {
		return filetransfer.FileTransferParams{}, ferrors.New(ferrors.BadAddress, fmt.Errorf("address %q has no host", raw))
	}

	proto := filetransfer.ProtocolSFTP
	if protoStr != "" {
		p, ok := protocolNames[strings.ToLower(protoStr)]
		if !ok {
			return filetransfer.FileTransferParams{}, ferrors.New(ferrors.BadAddress, fmt.Errorf("unrecognized protocol %q", protoStr))
		}
		proto = p
	}

	params := filetransfer.FileTransferParams{
		ProtocolParams: filetransfer.ProtocolParams{Protocol: proto},
	}
	if remoteDir != "" {
		params.EntryDirectory = remoteDir
	}

	if proto == filetransfer.ProtocolS3 {
		params.S3 = &filetransfer.S3Params{
			Bucket:    host,
			AccessKey: username,
			SecretKey: password,
		}
		return params, nil
	}

	port := proto.DefaultPort()
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 1 || p > 65535 {
			return filetransfer.FileTransferParams{}, ferrors.New(ferrors.BadAddress, fmt.Errorf("bad port in address %q", raw))
		}
		port = p
	}
	ftpsMode := filetransfer.FTPSNone
	if proto == filetransfer.ProtocolFTPS {
		ftpsMode = filetransfer.FTPSExplicit
	}
	params.Generic = &filetransfer.GenericParams{
		Address:  host,
		Port:     port,
		Username: username,
		Secret:   password,
		FTPSMode: ftpsMode,
	}
	return params, nil
}
