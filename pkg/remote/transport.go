// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/compare"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/restore"
)

// TransportConfig configures how a Dispatcher authenticates and
// connects. Authentication is public-key only, batch mode: no
// password or keyboard-interactive prompts are ever attempted.
type TransportConfig struct {
	PrivateKeyPath string
	KnownHostsPath string
	ConnectTimeout time.Duration // default 30s if zero
}

func (c TransportConfig) timeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ConnectTimeout
}

// Dispatcher executes checkpoint verbs against a remote host over
// SSH/SFTP. Every method validates its Spec/checkpoint-id arguments
// before dialing; a validation failure never results in a connection
// attempt.
type Dispatcher struct {
	cfg TransportConfig
}

// NewDispatcher returns a Dispatcher configured with cfg.
func NewDispatcher(cfg TransportConfig) *Dispatcher {
	return &Dispatcher{cfg: cfg}
}

func (d *Dispatcher) dial(spec *Spec) (*ssh.Client, error) {
	key, err := os.ReadFile(d.cfg.PrivateKeyPath) //nolint:gosec // path is operator-supplied configuration, not user input
	if err != nil {
		return nil, errors.NewRemoteError("Cannot read private key", err.Error(), "Check CHECKPOINT_SSH_KEY (default ~/.ssh/id_ed25519)", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.NewRemoteError("Cannot parse private key", err.Error(), "Confirm the key is an unencrypted OpenSSH or PEM private key", err)
	}

	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, errors.NewRemoteError("Cannot load known_hosts", err.Error(), "Check CHECKPOINT_KNOWN_HOSTS (default ~/.ssh/known_hosts)", err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            spec.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.cfg.timeout(),
	}

	addr := net.JoinHostPort(spec.Host, "22")
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, errors.NewRemoteError("Cannot connect to remote host", err.Error(), "Check host, port, and that the key is authorised there", err)
	}
	return client, nil
}

// hostKeyCallback implements accept-new strict host-key checking:
// a host seen for the first time is recorded and accepted; a host
// whose recorded key has changed is rejected.
func (d *Dispatcher) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.cfg.KnownHostsPath == "" {
		return nil, fmt.Errorf("no known_hosts path configured")
	}
	if _, err := os.Stat(d.cfg.KnownHostsPath); os.IsNotExist(err) {
		if f, createErr := os.OpenFile(d.cfg.KnownHostsPath, os.O_CREATE|os.O_WRONLY, 0o600); createErr == nil {
			f.Close()
		}
	}
	base, err := knownhosts.New(d.cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	return acceptNewWrapper(base, d.cfg.KnownHostsPath), nil
}

// acceptNewWrapper wraps a knownhosts callback so that an unknown host
// is appended to the known_hosts file and accepted, while a changed
// key for an already-known host is still rejected — the "accept-new"
// policy the spec calls for.
func acceptNewWrapper(base ssh.HostKeyCallback, knownHostsPath string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !isKeyError(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			// The host is known but under a different key: reject.
			return err
		}
		// Unknown host: append and accept.
		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		f, openErr := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, writeErr := f.WriteString(line + "\n")
		return writeErr
	}
}

func isKeyError(err error, out **knownhosts.KeyError) bool {
	ke, ok := err.(*knownhosts.KeyError)
	if ok {
		*out = ke
	}
	return ok
}

// Probe runs "test -d <path> || mkdir -p <path>" on the remote host,
// the cheapest possible round-trip to confirm reachability and ensure
// the backup root exists before any heavier verb.
func (d *Dispatcher) Probe(spec *Spec) error {
	if err := ValidatePath(spec.Path); err != nil {
		return err
	}
	client, err := d.dial(spec)
	if err != nil {
		return err
	}
	defer client.Close()

	cmd := fmt.Sprintf("test -d %s || mkdir -p %s", shellQuote(spec.Path), shellQuote(spec.Path))
	if _, err := runCommand(client, cmd); err != nil {
		return errors.NewRemoteError("Remote probe failed", err.Error(), "Check that the remote path is writable", err)
	}
	return nil
}

// List asks the far end to enumerate snapshot directories under
// spec.Path and returns only those matching the snapshot-name regex.
// An absent or empty remote root yields an empty list, never an
// error.
func (d *Dispatcher) List(spec *Spec) ([]string, error) {
	if err := ValidatePath(spec.Path); err != nil {
		return nil, err
	}
	client, err := d.dial(spec)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	cmd := fmt.Sprintf("ls -1 %s 2>/dev/null || true", shellQuote(spec.Path))
	out, err := runCommand(client, cmd)
	if err != nil {
		return nil, errors.NewRemoteError("Remote list failed", err.Error(), "", err)
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && snapshotNamePattern.MatchString(line) {
			names = append(names, line)
		}
	}
	return names, nil
}

var snapshotNamePattern = regexp.MustCompile(`^20\d{2}[01]\d[0-3]\d_[0-2]\d[0-5]\d[0-5]\d(_[A-Za-z0-9._-]+)?$`)

// Create streams localSource to the remote host under spec.Path using
// SFTP, then asks the far end to publish it atomically under a fresh
// snapshot name: the same stage-then-rename contract as the local
// engine, except the rename happens on the far end's filesystem since
// that filesystem is the authority for its own backup root.
func (d *Dispatcher) Create(spec *Spec, localSource, name string, excludes []string) error {
	if err := ValidatePath(spec.Path); err != nil {
		return err
	}
	if err := ValidateCheckpointID(name); err != nil {
		return err
	}
	client, err := d.dial(spec)
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return errors.NewRemoteError("Cannot open SFTP session", err.Error(), "", err)
	}
	defer sftpClient.Close()

	stageName := ".tmp." + name
	stagePath := path.Join(spec.Path, stageName)
	if err := sftpClient.MkdirAll(stagePath); err != nil {
		return errors.NewRemoteError("Cannot create remote stage directory", err.Error(), "", err)
	}

	if err := streamTree(sftpClient, localSource, stagePath, excludes); err != nil {
		_ = sftpClient.RemoveAll(stagePath)
		return errors.NewRemoteError("Remote stream failed", err.Error(), "", err)
	}

	targetPath := path.Join(spec.Path, name)
	if err := sftpClient.Rename(stagePath, targetPath); err != nil {
		_ = sftpClient.RemoveAll(stagePath)
		return errors.NewPublishError("Remote publish failed", err.Error(), "", err)
	}
	return nil
}

func streamTree(client *sftp.Client, localRoot, remoteRoot string, excludes []string) error {
	return walkLocal(localRoot, func(rel string, isDir bool, open func() (io.ReadCloser, error)) error {
		if matchesAny(rel, excludes) {
			return nil
		}
		remotePath := path.Join(remoteRoot, filepath.ToSlash(rel))
		if isDir {
			return client.MkdirAll(remotePath)
		}
		src, err := open()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := client.Create(remotePath)
		if err != nil {
			return err
		}
		defer dst.Close()

		_, err = io.Copy(dst, src)
		return err
	})
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := pathMatch(p, rel); ok {
			return true
		}
	}
	return false
}

func runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}

// shellQuote wraps s in single quotes for safe inclusion in a remote
// shell command, escaping any embedded single quote. Every value
// interpolated into a remote command string has already passed
// ValidatePath or ValidateCheckpointID, but this is a second,
// independent layer against shell metacharacters.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Retain applies count-based retention on the remote host: it lists
// snapshots there (the far end's filesystem is the sole authority over
// its own directory listing) and removes everything beyond the most
// recent keepN, oldest first.
func (d *Dispatcher) Retain(spec *Spec, keepN int) ([]string, error) {
	names, err := d.List(spec)
	if err != nil {
		return nil, err
	}
	if keepN < 0 {
		keepN = 0
	}
	if keepN >= len(names) {
		return nil, nil
	}

	client, err := d.dial(spec)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	doomed := names[:len(names)-keepN]
	for _, name := range doomed {
		if err := ValidateCheckpointID(name); err != nil {
			return nil, err
		}
		target := path.Join(spec.Path, name)
		cmd := fmt.Sprintf("rm -rf %s", shellQuote(target))
		if _, err := runCommand(client, cmd); err != nil {
			return nil, errors.NewRemoteError("Remote prune failed", err.Error(), "", err)
		}
	}
	return doomed, nil
}

// MetadataShow reads a remote snapshot's .metadata file and returns
// its raw contents.
func (d *Dispatcher) MetadataShow(spec *Spec, checkpointID string) (string, error) {
	if err := ValidatePath(spec.Path); err != nil {
		return "", err
	}
	if err := ValidateCheckpointID(checkpointID); err != nil {
		return "", err
	}
	client, err := d.dial(spec)
	if err != nil {
		return "", err
	}
	defer client.Close()

	metaPath := path.Join(spec.Path, checkpointID, ".metadata")
	out, err := runCommand(client, fmt.Sprintf("cat %s", shellQuote(metaPath)))
	if err != nil {
		return "", errors.NewRemoteError("Remote metadata read failed", err.Error(), "", err)
	}
	return out, nil
}

// Verify asks the remote host to report the size of every file under
// a snapshot and returns that listing as "relative-path<TAB>size"
// lines. It compares nothing itself, and no digest is computed.
func (d *Dispatcher) Verify(spec *Spec, checkpointID string) (string, error) {
	if err := ValidatePath(spec.Path); err != nil {
		return "", err
	}
	if err := ValidateCheckpointID(checkpointID); err != nil {
		return "", err
	}
	client, err := d.dial(spec)
	if err != nil {
		return "", err
	}
	defer client.Close()

	snapPath := path.Join(spec.Path, checkpointID)
	cmd := fmt.Sprintf("find %s -type f -printf '%%P\\t%%s\\n'", shellQuote(snapPath))
	out, err := runCommand(client, cmd)
	if err != nil {
		return "", errors.NewRemoteError("Remote verify enumeration failed", err.Error(), "", err)
	}
	return out, nil
}

// Compare pulls checkpointID down from the remote host into a local
// staging directory over SFTP, then runs the same comparison engine a
// local-to-local call would use. Streaming the remote tree keeps the
// content digest entirely local, rather than designing a bespoke
// over-the-wire diff protocol for a path that is already exercised by
// Create's staging-directory pattern.
func (d *Dispatcher) Compare(spec *Spec, checkpointID, localDir string, opts compare.Options) (*compare.Report, error) {
	if err := ValidateCheckpointID(checkpointID); err != nil {
		return nil, err
	}
	stagingDir, err := os.MkdirTemp("", "checkpoint-remote-compare-*")
	if err != nil {
		return nil, errors.NewEnvironmentError("Cannot create local staging directory", err.Error(), "", err)
	}
	defer os.RemoveAll(stagingDir)

	if err := d.download(spec, checkpointID, stagingDir); err != nil {
		return nil, err
	}

	report, err := compare.Snapshots(stagingDir, localDir, opts)
	if err != nil {
		return nil, errors.NewRemoteError("Remote comparison failed", err.Error(), "", err)
	}
	return report, nil
}

// Restore pulls checkpointID down from the remote host into a local
// staging directory over SFTP, then applies it onto targetDir through
// the same restore engine a local snapshot would use.
func (d *Dispatcher) Restore(ctx context.Context, spec *Spec, checkpointID, targetDir string, opts restore.Options) (*restore.Result, error) {
	if err := ValidateCheckpointID(checkpointID); err != nil {
		return nil, err
	}
	stagingDir, err := os.MkdirTemp("", "checkpoint-remote-restore-*")
	if err != nil {
		return nil, errors.NewEnvironmentError("Cannot create local staging directory", err.Error(), "", err)
	}
	defer os.RemoveAll(stagingDir)

	if err := d.download(spec, checkpointID, stagingDir); err != nil {
		return nil, err
	}

	result, err := restore.Restore(ctx, stagingDir, targetDir, opts)
	if err != nil {
		return nil, errors.NewRemoteError("Remote restore failed", err.Error(), "", err)
	}
	return result, nil
}

// download copies checkpointID from the remote host into localDir over
// SFTP, mirroring streamTree's walk but in the opposite direction.
func (d *Dispatcher) download(spec *Spec, checkpointID, localDir string) error {
	if err := ValidatePath(spec.Path); err != nil {
		return err
	}
	client, err := d.dial(spec)
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return errors.NewRemoteError("Cannot open SFTP session", err.Error(), "", err)
	}
	defer sftpClient.Close()

	remoteRoot := path.Join(spec.Path, checkpointID)
	if err := downloadTree(sftpClient, remoteRoot, localDir); err != nil {
		return errors.NewRemoteError("Remote download failed", err.Error(), "", err)
	}
	return nil
}

// downloadTree walks remoteRoot over an open SFTP session and mirrors
// every entry under localRoot, the reverse of streamTree.
func downloadTree(client *sftp.Client, remoteRoot, localRoot string) error {
	walker := client.Walk(remoteRoot)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return err
		}
		remotePath := walker.Path()
		rel, err := filepath.Rel(remoteRoot, remotePath)
		if err != nil {
			return err
		}
		if rel == "." {
			continue
		}
		localPath := filepath.Join(localRoot, filepath.FromSlash(rel))

		info := walker.Stat()
		if info.IsDir() {
			if err := os.MkdirAll(localPath, 0o750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
			return err
		}
		if err := downloadFile(client, remotePath, localPath, info); err != nil {
			return err
		}
	}
	return nil
}

func downloadFile(client *sftp.Client, remotePath, localPath string, info os.FileInfo) error {
	src, err := client.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}
