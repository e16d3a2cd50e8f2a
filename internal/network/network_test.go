package network

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekv/internal/protocol"
	"tablekv/internal/service"
	"tablekv/internal/storage"
	"tablekv/internal/types"
)

// testCert returns a self-signed certificate for 127.0.0.1 that doubles as
// its own CA on the client side.
func testCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "tablekv-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, pool
}

func startServer(t *testing.T, store storage.Storage) (*Server, string, *tls.Config) {
	t.Helper()

	cert, pool := testCert(t)
	serverConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	clientConf := &tls.Config{
		RootCAs:    pool,
		ServerName: "localhost",
		MinVersion: tls.VersionTLS12,
	}

	srv := NewServer(service.New(store), serverConf)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return srv, ln.Addr().String(), clientConf
}

func dialClient(t *testing.T, addr string, conf *tls.Config, poolSize int) *Client {
	t.Helper()
	client, err := Dial(addr, conf, poolSize)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHsetHgetOverNetwork(t *testing.T) {
	_, addr, conf := startServer(t, storage.NewMemStore())
	client := dialClient(t, addr, conf, 2)

	resp, err := client.Execute(types.NewHset("score", "u1", types.IntegerValue(10)))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, resp.Status)
	assert.Empty(t, resp.Values)
	assert.Empty(t, resp.Pairs)

	resp, err = client.Execute(types.NewHget("score", "u1"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, []types.Value{types.IntegerValue(10)}, resp.Values)

	resp, err = client.Execute(types.NewHget("score", "u2"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotFound, resp.Status)
	assert.Equal(t, "Not found: table:score, key:u2", resp.Message)
}

func TestHmsetThenHgetall(t *testing.T) {
	_, addr, conf := startServer(t, storage.NewMemStore())
	client := dialClient(t, addr, conf, 1)

	pairs := []types.KvPair{
		types.Pair("a", types.IntegerValue(1)),
		types.Pair("b", types.StringValue("two")),
		types.Pair("c", types.BoolValue(true)),
	}
	resp, err := client.Execute(types.NewHmset("t", pairs))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, resp.Status)

	resp, err = client.Execute(types.NewHgetall("t"))
	require.NoError(t, err)
	require.Equal(t, types.StatusOK, resp.Status)
	got := append([]types.KvPair(nil), resp.Pairs...)
	sort.Slice(got, func(i, j int) bool { return got[i].Key < got[j].Key })
	assert.Equal(t, pairs, got)
}

func TestPubSubAcrossClients(t *testing.T) {
	_, addr, conf := startServer(t, storage.NewMemStore())
	subscriber := dialClient(t, addr, conf, 1)
	publisher := dialClient(t, addr, conf, 1)

	sub, err := subscriber.Subscribe("news")
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)

	resp, err := publisher.Publish("news", []types.Value{types.StringValue("hi")})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, resp.Status)

	select {
	case got := <-sub.C:
		assert.Equal(t, []types.Value{types.StringValue("hi")}, got.Values)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published value")
	}

	resp, err = subscriber.Unsubscribe("news", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, resp.Status)

	// the delivery channel drains and closes
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-sub.C:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel did not close after unsubscribe")
		}
	}
}

func TestConcurrentStreamsShareState(t *testing.T) {
	_, addr, conf := startServer(t, storage.NewMemStore())
	a := dialClient(t, addr, conf, 2)
	b := dialClient(t, addr, conf, 2)

	_, err := a.Execute(types.NewHset("shared", "k", types.StringValue("v")))
	require.NoError(t, err)

	resp, err := b.Execute(types.NewHget("shared", "k"))
	require.NoError(t, err)
	assert.Equal(t, []types.Value{types.StringValue("v")}, resp.Values)
}

func TestStreamIsolation(t *testing.T) {
	_, addr, conf := startServer(t, storage.NewMemStore())
	client := dialClient(t, addr, conf, 1)

	// a raw stream carrying garbage gets a 400 and dies alone
	stream, err := client.openStream()
	require.NoError(t, err)
	_, err = stream.Write([]byte{0x00, 0x00, 0x00, 0x03, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	var bad types.CommandResponse
	require.NoError(t, protocol.DecodeFrame(stream, &bad))
	assert.Equal(t, types.StatusBadRequest, bad.Status)
	stream.Close()

	// the connection and its other streams keep working
	resp, err := client.Execute(types.NewHget("score", "missing"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotFound, resp.Status)
}

func TestBadgerEngineOverNetwork(t *testing.T) {
	bs, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	_, addr, conf := startServer(t, bs)
	client := dialClient(t, addr, conf, 1)

	_, err = client.Execute(types.NewHset("d", "k", types.FloatValue(1.5)))
	require.NoError(t, err)

	resp, err := client.Execute(types.NewHget("d", "k"))
	require.NoError(t, err)
	assert.Equal(t, []types.Value{types.FloatValue(1.5)}, resp.Values)
}

func TestClientWithoutCAFailsHandshake(t *testing.T) {
	_, addr, _ := startServer(t, storage.NewMemStore())

	// a client without the test CA cannot finish the handshake
	_, err := Dial(addr, &tls.Config{ServerName: "localhost", MinVersion: tls.VersionTLS12}, 1)
	assert.Error(t, err)
}
