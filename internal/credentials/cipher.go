package credentials

// Encrypt obfuscates value with the system secret using a repeating-key XOR:
// out[i] = secret[i mod len(secret)] ^ value[i].
//
// This is the host platform's stored-value format, kept bit-for-bit so
// existing enc_* attributes keep decoding. It is not a security mechanism.
func Encrypt(secret, value string) string {
	return xorString(secret, value)
}

// Decrypt reverses Encrypt. The XOR is its own inverse.
func Decrypt(secret, value string) string {
	return xorString(secret, value)
}

func xorString(key, value string) string {
	if key == "" || value == "" {
		return value
	}
	out := make([]byte, len(value))
	for i := 0; i < len(value); i++ {
		out[i] = key[i%len(key)] ^ value[i]
	}
	return string(out)
}
