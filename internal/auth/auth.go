package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
)

// 身份认证子系统的通用错误。
var (
	ErrDisabled           = errors.New("authentication disabled")
	ErrMissingCredentials = errors.New("missing api key")
	ErrInvalidCredentials = errors.New("invalid api key")
)

// Credential 是一条已登记的填单方凭证。Name 用于审计标识。
type Credential struct {
	Name string
	Key  string
}

// Service 维护静态 API 凭证并验证请求。凭证以 SHA-256 摘要保存，
// 比对使用常量时间。
type Service struct {
	enabled bool

	mu   sync.RWMutex
	keys map[string][32]byte // name -> digest
}

// NewService 构造认证服务。enabled 为假时所有请求直接放行。
func NewService(enabled bool, credentials []Credential) (*Service, error) {
	s := &Service{enabled: enabled, keys: make(map[string][32]byte)}
	for _, cred := range credentials {
		if err := s.Register(cred); err != nil {
			return nil, err
		}
	}
	if enabled && len(s.keys) == 0 {
		return nil, errors.New("认证已启用但未配置任何凭证")
	}
	return s, nil
}

// Enabled 返回认证是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Register 登记一条凭证。
func (s *Service) Register(cred Credential) error {
	name := strings.TrimSpace(cred.Name)
	if name == "" {
		return errors.New("凭证名称不能为空")
	}
	if strings.TrimSpace(cred.Key) == "" {
		return errors.New("凭证密钥不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[name] = sha256.Sum256([]byte(cred.Key))
	return nil
}

// Revoke 吊销指定名称的凭证。
func (s *Service) Revoke(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, name)
}

// Authenticate 校验给定密钥，返回命中的凭证名称。
func (s *Service) Authenticate(key string) (string, error) {
	if s == nil || !s.enabled {
		return "", ErrDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingCredentials
	}
	digest := sha256.Sum256([]byte(key))

	s.mu.RLock()
	defer s.mu.RUnlock()
	// 遍历全部凭证而非提前返回，避免按名字的时间侧信道。
	matched := ""
	for name, expected := range s.keys {
		if subtle.ConstantTimeCompare(expected[:], digest[:]) == 1 {
			matched = name
		}
	}
	if matched == "" {
		return "", ErrInvalidCredentials
	}
	return matched, nil
}
