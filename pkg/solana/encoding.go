package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/metadata-provisioner/pkg/solana/shortvec"
)

// Marshal encodes the transaction in the legacy wire format: the signatures
// followed by the message.
func (t Transaction) Marshal() []byte {
	b := appendLen(nil, len(t.Signatures))
	for _, s := range t.Signatures {
		b = append(b, s[:]...)
	}
	return append(b, t.Message.Marshal()...)
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := bytes.NewReader(b)

	count, err := shortvec.DecodeLen(r)
	if err != nil {
		return errors.Wrap(err, "failed to read signature count")
	}

	t.Signatures = make([]Signature, count)
	for i := range t.Signatures {
		if _, err := io.ReadFull(r, t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read signature %d", i)
		}
	}

	return t.Message.Unmarshal(b[len(b)-r.Len():])
}

// Marshal encodes the message in the legacy wire format. These are the bytes
// that get signed.
func (m Message) Marshal() []byte {
	b := []byte{m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly}

	b = appendLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		b = append(b, a...)
	}

	b = append(b, m.RecentBlockhash[:]...)

	b = appendLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		b = append(b, i.ProgramIndex)
		b = appendLen(b, len(i.Accounts))
		b = append(b, i.Accounts...)
		b = appendLen(b, len(i.Data))
		b = append(b, i.Data...)
	}

	return b
}

func (m *Message) Unmarshal(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	// Versioned messages set the high bit of the first byte.
	if b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	r := bytes.NewReader(b)

	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return errors.Wrap(err, "failed to read header")
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	accountCount, err := shortvec.DecodeLen(r)
	if err != nil {
		return errors.Wrap(err, "failed to read account count")
	}
	m.Accounts = make([]ed25519.PublicKey, accountCount)
	for i := range m.Accounts {
		m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		if _, err := io.ReadFull(r, m.Accounts[i]); err != nil {
			return errors.Wrapf(err, "failed to read account %d", i)
		}
	}

	if _, err := io.ReadFull(r, m.RecentBlockhash[:]); err != nil {
		return errors.Wrap(err, "failed to read recent blockhash")
	}

	instructionCount, err := shortvec.DecodeLen(r)
	if err != nil {
		return errors.Wrap(err, "failed to read instruction count")
	}
	m.Instructions = make([]CompiledInstruction, instructionCount)
	for i := range m.Instructions {
		c := &m.Instructions[i]

		if c.ProgramIndex, err = r.ReadByte(); err != nil {
			return errors.Wrapf(err, "failed to read instruction %d program index", i)
		}
		if int(c.ProgramIndex) >= accountCount {
			return errors.Errorf("instruction %d program index %d out of range", i, c.ProgramIndex)
		}

		if c.Accounts, err = readPrefixed(r); err != nil {
			return errors.Wrapf(err, "failed to read instruction %d accounts", i)
		}
		for _, index := range c.Accounts {
			if int(index) >= accountCount {
				return errors.Errorf("instruction %d account index %d out of range", i, index)
			}
		}

		if c.Data, err = readPrefixed(r); err != nil {
			return errors.Wrapf(err, "failed to read instruction %d data", i)
		}
	}

	return nil
}

// appendLen ignores the range error; every length written here is bounded by
// MaxTransactionSize.
func appendLen(b []byte, length int) []byte {
	b, _ = shortvec.AppendLen(b, length)
	return b
}

func readPrefixed(r *bytes.Reader) ([]byte, error) {
	length, err := shortvec.DecodeLen(r)
	if err != nil {
		return nil, err
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
