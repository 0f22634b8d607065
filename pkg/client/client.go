// Package client implements the docvault wire client: one TCP connection,
// logged in as a single principal, issuing store operations. Checked-out
// documents are mirrored into a local cache directory; on Close, locally
// modified documents owned by the principal are checked back in, then the
// cache is flushed.
package client

import (
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"docvault/logging"
	"docvault/pkg/models"
	"docvault/pkg/protocol"
)

// cachedEntry records what a cached file looked like at checkout time, so
// Close can tell pending local edits from untouched mirrors.
type cachedEntry struct {
	owner    string
	filename string
	level    models.SecurityLevel
	digest   [sha256.Size]byte
}

// Client drives one session against a docvault server. It is not safe for
// concurrent use.
type Client struct {
	conn       net.Conn
	principal  string
	serverCert *x509.Certificate
	cacheDir   string
	cached     map[string]cachedEntry
}

// Options configures a client connection.
type Options struct {
	// ServerAddress is the host:port of the document store.
	ServerAddress string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// CacheDir receives checked-out documents; empty disables the local
	// cache.
	CacheDir string
}

// Connect dials the server. The connection starts unauthenticated.
func Connect(opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := net.DialTimeout("tcp", opts.ServerAddress, timeout)
	if err != nil {
		return nil, &models.Error{
			Code:    models.ErrCodeTransportFailed,
			Message: fmt.Sprintf("failed to connect to %s", opts.ServerAddress),
			Err:     err,
		}
	}

	return &Client{
		conn:     conn,
		cacheDir: opts.CacheDir,
		cached:   make(map[string]cachedEntry),
	}, nil
}

// Login authenticates with the given certificate. On success the server's
// certificate is pinned on the client for inspection.
func (c *Client) Login(principal string, certDER []byte) error {
	resp, err := c.roundTrip(&protocol.LoginRequest{Principal: principal, Certificate: certDER})
	if err != nil {
		// A refused login is a closed connection, not a response.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &models.Error{
				Code:    models.ErrCodeAuthFailed,
				Message: "server refused login",
				Err:     err,
			}
		}
		return err
	}

	login, ok := resp.(*protocol.LoginResponse)
	if !ok {
		return unexpectedResponse(resp)
	}
	if !login.Success {
		return &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: "server refused login",
		}
	}

	cert, err := x509.ParseCertificate(login.ServerCertificate)
	if err != nil {
		return &models.Error{
			Code:    models.ErrCodeAuthFailed,
			Message: "server returned an unparseable certificate",
			Err:     err,
		}
	}

	c.principal = principal
	c.serverCert = cert
	return nil
}

// Principal returns the logged-in principal, or "" before login.
func (c *Client) Principal() string {
	return c.principal
}

// ServerCertificate returns the certificate pinned at login.
func (c *Client) ServerCertificate() *x509.Certificate {
	return c.serverCert
}

// CheckIn stores content under the logged-in principal's namespace.
func (c *Client) CheckIn(filename string, level models.SecurityLevel, content []byte) error {
	resp, err := c.roundTrip(&protocol.CheckinRequest{Filename: filename, Level: level, Content: content})
	if err != nil {
		return err
	}
	checkin, ok := resp.(*protocol.CheckinResponse)
	if !ok {
		return unexpectedResponse(resp)
	}
	if !checkin.Success {
		return operationRefused("check-in")
	}
	return nil
}

// CheckOut retrieves a document and the level it was checked in under, and
// mirrors it into the cache directory.
func (c *Client) CheckOut(owner, filename string) ([]byte, models.SecurityLevel, error) {
	resp, err := c.roundTrip(&protocol.CheckoutRequest{Owner: owner, Filename: filename})
	if err != nil {
		return nil, models.LevelNone, err
	}
	checkout, ok := resp.(*protocol.CheckoutResponse)
	if !ok {
		return nil, models.LevelNone, unexpectedResponse(resp)
	}
	if !checkout.Success {
		return nil, models.LevelNone, operationRefused("checkout")
	}

	c.cacheDocument(owner, filename, checkout.Level, checkout.Content)
	return checkout.Content, checkout.Level, nil
}

// Delegate grants grantee access to a document. The protocol defines no
// response for delegation, so success cannot be observed here.
func (c *Client) Delegate(owner, filename, grantee string, duration time.Duration, propagate bool) error {
	return protocol.WriteMessage(c.conn, &protocol.DelegationRequest{
		Owner:           owner,
		Filename:        filename,
		Grantee:         grantee,
		DurationSeconds: int64(duration / time.Second),
		Propagate:       propagate,
	})
}

// Delete removes a document owned by the logged-in principal.
func (c *Client) Delete(owner, filename string) error {
	resp, err := c.roundTrip(&protocol.DeleteRequest{Owner: owner, Filename: filename})
	if err != nil {
		return err
	}
	del, ok := resp.(*protocol.DeleteResponse)
	if !ok {
		return unexpectedResponse(resp)
	}
	if !del.Success {
		return operationRefused("delete")
	}
	return nil
}

// Close checks locally modified cached documents back in, ends the session,
// flushes the local checkout cache, and closes the connection.
func (c *Client) Close() error {
	c.writeBackCache()
	if err := protocol.WriteMessage(c.conn, &protocol.CloseRequest{}); err != nil {
		logging.Debug("Failed to send close: %v", err)
	}
	c.flushCache()
	return c.conn.Close()
}

func (c *Client) roundTrip(req protocol.Message) (protocol.Message, error) {
	if err := protocol.WriteMessage(c.conn, req); err != nil {
		return nil, err
	}
	return protocol.ReadMessage(c.conn)
}

// cacheDocument mirrors a checkout onto disk and remembers its digest so
// Close can detect local edits. Cache failures are logged and swallowed;
// the caller already has the content.
func (c *Client) cacheDocument(owner, filename string, level models.SecurityLevel, content []byte) {
	if c.cacheDir == "" {
		return
	}

	rel := filepath.Join(owner, filename)
	if !filepath.IsLocal(rel) {
		logging.Warn("Refusing to cache document with non-local path %s/%s", owner, filename)
		return
	}

	path := filepath.Join(c.cacheDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logging.Warn("Failed to create cache directory: %v", err)
		return
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		logging.Warn("Failed to cache document: %v", err)
		return
	}

	c.cached[path] = cachedEntry{
		owner:    owner,
		filename: filename,
		level:    level,
		digest:   sha256.Sum256(content),
	}
}

// writeBackCache checks modified cached documents back in at their original
// level. Only the principal's own documents can be written back; mirrors of
// other owners' documents are read-only.
func (c *Client) writeBackCache() {
	for path, entry := range c.cached {
		if entry.owner != c.principal {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if sha256.Sum256(raw) == entry.digest {
			continue
		}
		if err := c.CheckIn(entry.filename, entry.level, raw); err != nil {
			logging.Warn("Failed to write back %s/%s: %v", entry.owner, entry.filename, err)
		}
	}
}

// flushCache removes everything under the cache directory. Checked-out
// plaintext never outlives the session.
func (c *Client) flushCache() {
	c.cached = make(map[string]cachedEntry)
	if c.cacheDir == "" {
		return
	}

	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Failed to read cache directory: %v", err)
		}
		return
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.cacheDir, entry.Name())); err != nil {
			logging.Warn("Failed to flush cached document: %v", err)
		}
	}
}

func unexpectedResponse(msg protocol.Message) error {
	return &models.Error{
		Code:    models.ErrCodeTransportFailed,
		Message: fmt.Sprintf("unexpected %s response", msg.Type()),
	}
}

func operationRefused(op string) error {
	return &models.Error{
		Code:    models.ErrCodeAccessDenied,
		Message: fmt.Sprintf("server refused %s", op),
	}
}
