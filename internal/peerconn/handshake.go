package peerconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/meshpeer-go/internal/packet"
)

var (
	// ErrHandshakeFailed is returned when the remote handshake cannot be verified
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrNetworkMismatch is returned when the remote node belongs to another network
	ErrNetworkMismatch = errors.New("network name mismatch")
	// ErrHandshakeAlreadyDone is returned when a handshake is attempted twice
	ErrHandshakeAlreadyDone = errors.New("handshake already done")
)

// handshakeClaims is the token each side presents. Subject is the node id.
type handshakeClaims struct {
	Network string `json:"network"`
	ConnID  string `json:"conn"`
	jwt.RegisteredClaims
}

// DoHandshakeAsClient sends our identity first, then verifies the server's
func (c *PeerConn) DoHandshakeAsClient(ctx context.Context) error {
	return c.handshake(ctx, true)
}

// DoHandshakeAsServer verifies the client's identity first, then answers with ours
func (c *PeerConn) DoHandshakeAsServer(ctx context.Context) error {
	return c.handshake(ctx, false)
}

func (c *PeerConn) handshake(ctx context.Context, sendFirst bool) error {
	if c.handshakeDone.Load() {
		return ErrHandshakeAlreadyDone
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	var err error
	if sendFirst {
		if err = c.sendHandshake(ctx); err == nil {
			err = c.recvHandshake(ctx)
		}
	} else {
		if err = c.recvHandshake(ctx); err == nil {
			err = c.sendHandshake(ctx)
		}
	}
	if err != nil {
		c.logger.Warn("handshake failed", zap.Error(err))
		return err
	}

	c.lastRecv.Store(time.Now().UnixNano())
	c.handshakeDone.Store(true)
	c.logger = c.logger.With(zap.Stringer("peer_node_id", c.PeerNodeID()))
	c.logger.Info("handshake done", zap.Bool("client", sendFirst))
	return nil
}

func (c *PeerConn) sendHandshake(ctx context.Context) error {
	now := time.Now()
	claims := handshakeClaims{
		Network: c.config.NetworkName,
		ConnID:  c.connID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.myNodeID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.HandshakeTimeout)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.config.NetworkSecret))
	if err != nil {
		return fmt.Errorf("failed to sign handshake: %w", err)
	}

	frame := packet.Packet{Type: packet.TypeHandshake, Payload: []byte(token)}.Encode()
	if err := c.tunnel.Send(ctx, frame); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	return nil
}

func (c *PeerConn) recvHandshake(ctx context.Context) error {
	frame, err := c.recvWithContext(ctx)
	if err != nil {
		return fmt.Errorf("recv handshake: %w", err)
	}

	pkt, err := packet.Decode(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if pkt.Type != packet.TypeHandshake {
		return fmt.Errorf("%w: unexpected packet type %#x", ErrHandshakeFailed, pkt.Type)
	}

	claims := &handshakeClaims{}
	_, err = jwt.ParseWithClaims(string(pkt.Payload), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(c.config.NetworkSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	if claims.Network != c.config.NetworkName {
		return fmt.Errorf("%w: local %q, remote %q", ErrNetworkMismatch, c.config.NetworkName, claims.Network)
	}

	peerNodeID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return fmt.Errorf("%w: invalid node id: %w", ErrHandshakeFailed, err)
	}
	remoteConnID, err := uuid.Parse(claims.ConnID)
	if err != nil {
		return fmt.Errorf("%w: invalid conn id: %w", ErrHandshakeFailed, err)
	}

	c.mu.Lock()
	c.peerNodeID = peerNodeID
	c.remoteConnID = remoteConnID
	c.mu.Unlock()
	return nil
}

// recvWithContext bounds a tunnel Recv by ctx even for tunnels that only
// unblock on Close. On expiry the tunnel is closed.
func (c *PeerConn) recvWithContext(ctx context.Context) ([]byte, error) {
	type result struct {
		frame []byte
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		frame, err := c.tunnel.Recv(ctx)
		ch <- result{frame, err}
	}()

	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		_ = c.tunnel.Close()
		return nil, ctx.Err()
	}
}
