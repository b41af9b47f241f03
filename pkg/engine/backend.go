package engine

import (
	"crypto/tls"
	"net"

	utls "github.com/refraction-networking/utls"
)

// stdConn is the crypto/tls backend.
type stdConn struct {
	*tls.Conn
}

func newStdConn(conn net.Conn, cfg *tls.Config) tlsConn {
	return stdConn{Conn: tls.Client(conn, cfg)}
}

// helloPreset wraps a uTLS ClientHello preset.
type helloPreset struct {
	id utls.ClientHelloID
}

// utlsConn is the uTLS backend, used when a fingerprint is configured.
type utlsConn struct {
	*utls.UConn
}

func newUTLSConn(conn net.Conn, cfg Config, id utls.ClientHelloID,
	getCert func(*tls.CertificateRequestInfo) (*tls.Certificate, error)) tlsConn {
	ucfg := buildUTLSConfig(cfg)
	if getCert != nil {
		ucfg.GetClientCertificate = func(info *utls.CertificateRequestInfo) (*utls.Certificate, error) {
			cert, err := getCert(toStdRequestInfo(info))
			if err != nil || cert == nil {
				return nil, err
			}
			return &utls.Certificate{
				Certificate: cert.Certificate,
				PrivateKey:  cert.PrivateKey,
				Leaf:        cert.Leaf,
				OCSPStaple:  cert.OCSPStaple,
			}, nil
		}
	}
	return utlsConn{UConn: utls.UClient(conn, ucfg, id)}
}

// ConnectionState converts the uTLS state to its crypto/tls counterpart.
func (c utlsConn) ConnectionState() tls.ConnectionState {
	st := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:            st.Version,
		HandshakeComplete:  st.HandshakeComplete,
		DidResume:          st.DidResume,
		CipherSuite:        st.CipherSuite,
		NegotiatedProtocol: st.NegotiatedProtocol,
		ServerName:         st.ServerName,
		PeerCertificates:   st.PeerCertificates,
		VerifiedChains:     st.VerifiedChains,
	}
}

func toStdRequestInfo(info *utls.CertificateRequestInfo) *tls.CertificateRequestInfo {
	schemes := make([]tls.SignatureScheme, len(info.SignatureSchemes))
	for i, s := range info.SignatureSchemes {
		schemes[i] = tls.SignatureScheme(s)
	}
	return &tls.CertificateRequestInfo{
		AcceptableCAs:    info.AcceptableCAs,
		SignatureSchemes: schemes,
		Version:          info.Version,
	}
}
