package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2 迭代次数，和密钥长度（AES-256）
	keyIterations = 100_000
	keyLen        = 32
	saltLen       = 32
)

// ErrDecrypt 表示解密失败：密钥错误、数据被篡改或截断。
// 解密失败时绝不返回明文。
var ErrDecrypt = errors.New("decrypt failed")

// DeriveKey 从密码和 salt 派生 32 字节对称密钥（PBKDF2+SHA256）。
// 相同输入始终得到相同密钥，用于重新打开已加密的数据库。
func DeriveKey(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), keyIterations, keyLen, sha256.New)
}

// GenerateSalt 生成随机 salt，base64 编码便于存储。
func GenerateSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// HashPassword 生成仅用于校验的密码哈希（bcrypt）。
// 和 DeriveKey 使用不同的原语：泄露校验哈希不会泄露数据密钥。
// bcrypt 输入长度有限制，先做 SHA256 预哈希。
func HashPassword(password, salt string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword(prehash(password, salt), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword 校验明文密码与存储的哈希是否匹配（恒定耗时比较）。
func VerifyPassword(password, salt, stored string) bool {
	if password == "" || stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), prehash(password, salt)) == nil
}

func prehash(password, salt string) []byte {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum[:])
	return out
}

// Cipher 对敏感字符串做 AES-256-GCM 认证加密。
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher 从密码和 salt 构造加密实例。
func NewCipher(password, salt string) (*Cipher, error) {
	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt 加密字符串，返回 base64(nonce+ciphertext)。
// 每次调用生成新的随机 nonce，密文自包含、可独立解密。
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// 前面拼上 nonce，解密时拆回来
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt 解密 Encrypt 生成的数据。任何失败都返回 ErrDecrypt。
func (c *Cipher) Decrypt(encoded string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrDecrypt)
	}
	ns := c.aead.NonceSize()
	if len(combined) < ns {
		return "", fmt.Errorf("%w: cipher too short", ErrDecrypt)
	}
	plaintext, err := c.aead.Open(nil, combined[:ns], combined[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// SelfTest 加密并解密一个已知值，用于启用加密前的自检。
func (c *Cipher) SelfTest() error {
	const probe = "encryption_test"
	enc, err := c.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("self test encrypt: %w", err)
	}
	dec, err := c.Decrypt(enc)
	if err != nil {
		return fmt.Errorf("self test decrypt: %w", err)
	}
	if dec != probe {
		return fmt.Errorf("self test mismatch")
	}
	return nil
}
