package e2ee

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerive_Both_Sides_Agree(t *testing.T) {
	req := require.New(t)

	alice, err := GenerateKeyPair()
	req.NoError(err)
	bob, err := GenerateKeyPair()
	req.NoError(err)

	// Each side derives from its own private key and the peer's public key
	aliceSession, err := Derive(alice.Private, bob.Public[:])
	req.NoError(err)
	bobSession, err := Derive(bob.Private, alice.Public[:])
	req.NoError(err)

	// The sessions are interchangeable in both directions
	ciphertext, iv, mac, err := aliceSession.Seal([]byte("hello bob"))
	req.NoError(err)
	plaintext, err := bobSession.Open(ciphertext, iv, mac)
	req.NoError(err)
	req.Equal([]byte("hello bob"), plaintext)

	ciphertext, iv, mac, err = bobSession.Seal([]byte("hello alice"))
	req.NoError(err)
	plaintext, err = aliceSession.Open(ciphertext, iv, mac)
	req.NoError(err)
	req.Equal([]byte("hello alice"), plaintext)
}

func TestSeal_Fresh_Nonce_Per_Message(t *testing.T) {
	req := require.New(t)
	session := testSession(t)

	_, iv1, _, err := session.Seal([]byte("same plaintext"))
	req.NoError(err)
	_, iv2, _, err := session.Seal([]byte("same plaintext"))
	req.NoError(err)
	req.NotEqual(iv1, iv2)
}

func TestOpen_Rejects_Forged_MAC(t *testing.T) {
	req := require.New(t)
	session := testSession(t)

	ciphertext, iv, mac, err := session.Seal([]byte("secret"))
	req.NoError(err)

	// Flipping one bit anywhere in the authenticated data must fail
	mac[0] ^= 0x01
	_, err = session.Open(ciphertext, iv, mac)
	req.ErrorIs(err, ErrBadMAC)
	mac[0] ^= 0x01

	ciphertext[0] ^= 0x01
	_, err = session.Open(ciphertext, iv, mac)
	req.ErrorIs(err, ErrBadMAC)
	ciphertext[0] ^= 0x01

	iv[0] ^= 0x01
	_, err = session.Open(ciphertext, iv, mac)
	req.ErrorIs(err, ErrBadMAC)
}

func TestOpen_Rejects_Short_Material(t *testing.T) {
	req := require.New(t)
	session := testSession(t)

	ciphertext, _, mac, err := session.Seal([]byte("secret"))
	req.NoError(err)

	_, err = session.Open(ciphertext, []byte("short"), mac)
	req.ErrorIs(err, ErrShortMaterial)
}

func TestDerive_Rejects_Short_Public_Key(t *testing.T) {
	req := require.New(t)

	kp, err := GenerateKeyPair()
	req.NoError(err)

	_, err = Derive(kp.Private, []byte("too short"))
	req.ErrorIs(err, ErrShortMaterial)
}

func TestSessions_From_Different_Pairs_Do_Not_Interoperate(t *testing.T) {
	req := require.New(t)

	alice, err := GenerateKeyPair()
	req.NoError(err)
	bob, err := GenerateKeyPair()
	req.NoError(err)
	eve, err := GenerateKeyPair()
	req.NoError(err)

	aliceToBob, err := Derive(alice.Private, bob.Public[:])
	req.NoError(err)
	eveToBob, err := Derive(eve.Private, bob.Public[:])
	req.NoError(err)

	ciphertext, iv, mac, err := aliceToBob.Seal([]byte("for bob only"))
	req.NoError(err)
	_, err = eveToBob.Open(ciphertext, iv, mac)
	req.ErrorIs(err, ErrBadMAC)
}

func testSession(t *testing.T) *Session {
	t.Helper()
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	session, err := Derive(alice.Private, bob.Public[:])
	require.NoError(t, err)
	return session
}
