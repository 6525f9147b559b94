package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	domsvc "sentioracle/internal/domain/service"
	xhttp "sentioracle/pkg/http"
)

// Remote signs via an HSM/KMS-fronting HTTP endpoint, the same
// reach-out-over-the-network shape as the reference AWSKMSKeyManager but
// generalized to any signing service speaking this small JSON protocol,
// reusing the generic HTTP client the rest of the oracle's outbound calls
// share.
type Remote struct {
	client  *xhttp.Client
	baseURL string
	address string
}

type remoteAddressResponse struct {
	Address string `json:"address"`
}

type remoteSignRequest struct {
	Digest string `json:"digest"`
}

type remoteSignResponse struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

// NewRemote fetches and caches the signer address from the remote
// service at construction time, so repeated Address() calls need no
// round trip.
func NewRemote(ctx context.Context, baseURL string, timeout time.Duration) (*Remote, error) {
	client := xhttp.NewClient(xhttp.WithTimeout(timeout))
	rm := &Remote{client: client, baseURL: baseURL}

	var resp remoteAddressResponse
	err := client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    baseURL + "/address",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("remote signer: fetch address: %w", err)
	}
	rm.address = resp.Address
	return rm, nil
}

// Address implements domain/service.Signer.
func (r *Remote) Address() string { return r.address }

// Sign implements domain/service.Signer, POSTing the digest for the
// remote key custodian to sign and never transmitting key material.
func (r *Remote) Sign(ctx context.Context, digest [32]byte) ([32]byte, [32]byte, byte, error) {
	var resp remoteSignResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    r.baseURL + "/sign",
		Body:   remoteSignRequest{Digest: hex.EncodeToString(digest[:])},
	}, &resp)
	if err != nil {
		return [32]byte{}, [32]byte{}, 0, fmt.Errorf("remote signer: sign: %w", err)
	}

	rBytes, err := hex.DecodeString(resp.R)
	if err != nil || len(rBytes) != 32 {
		return [32]byte{}, [32]byte{}, 0, fmt.Errorf("remote signer: malformed r")
	}
	sBytes, err := hex.DecodeString(resp.S)
	if err != nil || len(sBytes) != 32 {
		return [32]byte{}, [32]byte{}, 0, fmt.Errorf("remote signer: malformed s")
	}

	var rOut, sOut [32]byte
	copy(rOut[:], rBytes)
	copy(sOut[:], sBytes)
	return rOut, sOut, resp.V, nil
}

var _ domsvc.Signer = (*Remote)(nil)
