package manifest

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"

	"alexhalogen/crystalarchive/internal/integrity"
	"alexhalogen/crystalarchive/internal/types"
)

// plainManifest has Manifest's fields without its methods, so the CBOR
// codec does not call back into MarshalBinary.
type plainManifest Manifest

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("manifest: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("manifest: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal returns the indented JSON form.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// MarshalBinary returns the deterministic CBOR form embedded in voxel
// stream files.
func (m *Manifest) MarshalBinary() ([]byte, error) {
	return encMode.Marshal((*plainManifest)(m))
}

// Unmarshal parses the JSON form. Every required field must be present,
// the layout must be self-consistent and the digest must match.
func Unmarshal(data []byte) (*Manifest, error) {
	if err := checkRequired(data, reflect.TypeOf(Manifest{}), ""); err != nil {
		return nil, err
	}
	m := new(Manifest)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &types.ManifestError{Field: "(document)", Reason: err.Error()}
	}
	return m, m.check()
}

// UnmarshalBinary parses the CBOR form with the same checks as Unmarshal.
func UnmarshalBinary(data []byte) (*Manifest, error) {
	var generic map[string]any
	if err := decMode.Unmarshal(data, &generic); err != nil {
		return nil, &types.ManifestError{Field: "(document)", Reason: err.Error()}
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, &types.ManifestError{Field: "(document)", Reason: err.Error()}
	}
	if err := checkRequired(asJSON, reflect.TypeOf(Manifest{}), ""); err != nil {
		return nil, err
	}
	m := new(Manifest)
	if err := decMode.Unmarshal(data, (*plainManifest)(m)); err != nil {
		return nil, &types.ManifestError{Field: "(document)", Reason: err.Error()}
	}
	return m, m.check()
}

func (m *Manifest) check() error {
	if err := m.Validate(); err != nil {
		return err
	}
	return m.VerifyDigest()
}

// checkRequired walks t and reports the first field without omitempty that
// the raw JSON object lacks.
func checkRequired(raw []byte, t reflect.Type, prefix string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		reason := "not an object"
		if err != nil {
			reason = err.Error()
		}
		return &types.ManifestError{Field: fieldName(prefix, ""), Reason: reason}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		val, ok := obj[name]
		if !ok {
			if strings.Contains(opts, "omitempty") {
				continue
			}
			return &types.ManifestError{Field: fieldName(prefix, name), Reason: "required field missing"}
		}
		switch {
		case f.Type.Kind() == reflect.Struct:
			if err := checkRequired(val, f.Type, fieldName(prefix, name)); err != nil {
				return err
			}
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct:
			var items []json.RawMessage
			if err := json.Unmarshal(val, &items); err != nil {
				return &types.ManifestError{Field: fieldName(prefix, name), Reason: err.Error()}
			}
			for j, item := range items {
				if err := checkRequired(item, f.Type.Elem(), fmt.Sprintf("%s[%d]", fieldName(prefix, name), j)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func fieldName(prefix, name string) string {
	switch {
	case prefix == "" && name == "":
		return "(document)"
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "." + name
}

// ComputeDigest hashes the canonical CBOR encoding with the digest and
// signature cleared.
func (m *Manifest) ComputeDigest() (string, error) {
	c := *m
	c.Integrity.ManifestDigest = ""
	c.Integrity.Signature = ""
	b, err := encMode.Marshal((*plainManifest)(&c))
	if err != nil {
		return "", err
	}
	return integrity.SHA256Hex(b), nil
}

func (m *Manifest) VerifyDigest() error {
	want, err := m.ComputeDigest()
	if err != nil {
		return &types.ManifestError{Field: "integrity.manifest_digest", Reason: err.Error()}
	}
	if want != m.Integrity.ManifestDigest {
		return &types.ManifestError{
			Field:  "integrity.manifest_digest",
			Reason: fmt.Sprintf("recorded %s, computed %s", m.Integrity.ManifestDigest, want),
		}
	}
	return nil
}

// Seal fills in the digest and, when key is set, the signature.
func (m *Manifest) Seal(key ed25519.PrivateKey) error {
	m.Integrity.DigestRule = DigestRule
	if key != nil {
		m.Integrity.SignatureScheme = integrity.SignatureScheme
		m.Integrity.PublicKey = hex.EncodeToString(key.Public().(ed25519.PublicKey))
	}
	digest, err := m.ComputeDigest()
	if err != nil {
		return err
	}
	m.Integrity.ManifestDigest = digest
	if key == nil {
		return nil
	}
	sig, err := integrity.Sign(key, digest)
	if err != nil {
		return err
	}
	m.Integrity.Signature = sig
	return nil
}

// Signed reports whether the manifest carries a signature.
func (m *Manifest) Signed() bool { return m.Integrity.Signature != "" }

// VerifySignature checks the signature against pub, or against the
// embedded public key when pub is nil.
func (m *Manifest) VerifySignature(pub ed25519.PublicKey) error {
	if !m.Signed() {
		return &types.IntegrityError{Scope: "manifest signature missing"}
	}
	if pub == nil {
		raw, err := hex.DecodeString(m.Integrity.PublicKey)
		if err != nil {
			return &types.ManifestError{Field: "integrity.public_key", Reason: err.Error()}
		}
		pub = ed25519.PublicKey(raw)
	}
	if !integrity.VerifySignature(pub, m.Integrity.ManifestDigest, m.Integrity.Signature) {
		return &types.IntegrityError{Scope: "manifest signature", Expected: hex.EncodeToString(pub)}
	}
	return nil
}
