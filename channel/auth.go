package channel

// Encoder is implemented by every structure that can be authorized.
type Encoder interface {
	Encode() []byte
}

// SigningPayload is tag || encode(body). Binding the tag into the signed
// bytes confines a signature to one channel.
func SigningPayload(tag Tag, body Encoder) []byte {
	enc := body.Encode()
	msg := make([]byte, 0, len(tag)+len(enc))
	msg = append(msg, tag...)
	return append(msg, enc...)
}

func Authorize(s Signer, tag Tag, body Encoder) (Signature, error) {
	return s.Sign(SigningPayload(tag, body))
}

func Verify(vk VerificationKey, tag Tag, body Encoder, sig Signature) bool {
	return verifySignature(vk, SigningPayload(tag, body), sig)
}
