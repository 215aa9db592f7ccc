// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"encoding/binary"
	"fmt"
)

// CredentialKind tags the concrete payload a StepCredential carries. The
// core never interprets the payload itself -- it only forwards it between
// the step layout builder and the persistence codec on behalf of whatever
// interconnect plugin produced it.
type CredentialKind uint8

const (
	// CredentialNone means the step carries no switch-specific state.
	CredentialNone CredentialKind = iota
	// CredentialOpaque is an arbitrary externally-produced blob.
	CredentialOpaque
)

// StepCredential is a sealed, externally-opaque per-step credential. The
// core only ever packs, unpacks, and forwards it; Open Question 2 (Design
// Notes) resolves unpack failure as a propagated error, never a silent
// log-and-continue.
type StepCredential struct {
	Kind    CredentialKind
	Key     uint64 // the monotonic switch-credential counter value
	Payload []byte
}

// NewOpaqueCredential builds a StepCredential wrapping an externally
// produced payload under the next monotonic key.
func NewOpaqueCredential(key uint64, payload []byte) *StepCredential {
	return &StepCredential{Kind: CredentialOpaque, Key: key, Payload: append([]byte(nil), payload...)}
}

// Pack serializes the credential to bytes: kind (1), key (8), length-
// prefixed payload.
func (c *StepCredential) Pack() []byte {
	if c == nil || c.Kind == CredentialNone {
		out := make([]byte, 9)
		out[0] = byte(CredentialNone)
		return out
	}
	out := make([]byte, 9+4+len(c.Payload))
	out[0] = byte(c.Kind)
	binary.BigEndian.PutUint64(out[1:9], c.Key)
	binary.BigEndian.PutUint32(out[9:13], uint32(len(c.Payload)))
	copy(out[13:], c.Payload)
	return out
}

// UnpackStepCredential reverses Pack. A truncated or otherwise malformed
// buffer is a propagated error, never a logged-and-ignored condition.
func UnpackStepCredential(buf []byte) (*StepCredential, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("switchcred: buffer too short (%d bytes)", len(buf))
	}
	kind := CredentialKind(buf[0])
	if kind == CredentialNone {
		return &StepCredential{Kind: CredentialNone}, nil
	}
	key := binary.BigEndian.Uint64(buf[1:9])
	if len(buf) < 13 {
		return nil, fmt.Errorf("switchcred: buffer missing payload length")
	}
	plen := binary.BigEndian.Uint32(buf[9:13])
	if uint32(len(buf)-13) < plen {
		return nil, fmt.Errorf("switchcred: payload truncated: want %d, have %d", plen, len(buf)-13)
	}
	payload := append([]byte(nil), buf[13:13+plen]...)
	return &StepCredential{Kind: kind, Key: key, Payload: payload}, nil
}
