package accounts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	accountsFileMode = 0o600
	accountsDirMode  = 0o700
)

// Store is the account collaborator used by the orchestrator.
type Store interface {
	// List returns every account in file order.
	List(ctx context.Context) ([]Account, error)

	// Get returns one account or ErrNotFound.
	Get(ctx context.Context, id string) (Account, error)

	// Add appends an account; the id must be new.
	Add(ctx context.Context, account Account) error

	// Update replaces the account with the same id.
	Update(ctx context.Context, account Account) error

	// Delete removes an account.
	Delete(ctx context.Context, id string) error

	// ActiveSubset returns the persisted active selection. A nil result
	// means no selection was made and every account is active.
	ActiveSubset(ctx context.Context) ([]string, error)

	// SetActiveSubset persists the active selection. Patterns may use glob
	// syntax; nil clears the selection.
	SetActiveSubset(ctx context.Context, patterns []string) error
}

// codec encodes a whole file. The format follows the file extension.
type codec struct {
	name      string
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

var (
	yamlCodec = codec{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
	tomlCodec = codec{name: "toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal}
)

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec, nil
	case ".toml":
		return tomlCodec, nil
	default:
		return codec{}, fmt.Errorf("unsupported accounts file format %q (use .yaml or .toml)", filepath.Ext(path))
	}
}

type accountsFile struct {
	Accounts []Account `yaml:"accounts" toml:"accounts"`
}

type activeFile struct {
	Active []string `yaml:"active" toml:"active"`
}

// FileStore keeps accounts in one YAML or TOML file and the active subset
// in a second file of either format.
type FileStore struct {
	accountsPath string
	activePath   string
	accounts     codec
	active       codec
	mu           sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens a store. activePath may be empty when no active subset
// is used; the files themselves are created on first write.
func NewFileStore(accountsPath, activePath string) (*FileStore, error) {
	if accountsPath == "" {
		return nil, errors.New("accounts path is empty")
	}
	ac, err := codecFor(accountsPath)
	if err != nil {
		return nil, err
	}

	s := &FileStore{accountsPath: filepath.Clean(accountsPath), accounts: ac}
	if activePath != "" {
		acc, err := codecFor(activePath)
		if err != nil {
			return nil, err
		}
		s.activePath = filepath.Clean(activePath)
		s.active = acc
	}
	return s, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	return file.Accounts, nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (Account, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add implements Store.
func (s *FileStore) Add(ctx context.Context, account Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(file *accountsFile) error {
		for _, a := range file.Accounts {
			if a.ID == account.ID {
				return fmt.Errorf("%w: %s", ErrDuplicate, account.ID)
			}
		}
		file.Accounts = append(file.Accounts, account)
		return nil
	})
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, account Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx, func(file *accountsFile) error {
		for i := range file.Accounts {
			if file.Accounts[i].ID == account.ID {
				file.Accounts[i] = account
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, account.ID)
	})
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(file *accountsFile) error {
		for i := range file.Accounts {
			if file.Accounts[i].ID == id {
				file.Accounts = append(file.Accounts[:i], file.Accounts[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// ActiveSubset implements Store.
func (s *FileStore) ActiveSubset(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.activePath == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.activePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read active accounts file: %w", err)
	}

	var file activeFile
	if err := s.active.unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode active accounts file: %w", err)
	}
	if len(file.Active) == 0 {
		return nil, nil
	}
	return file.Active, nil
}

// SetActiveSubset implements Store.
func (s *FileStore) SetActiveSubset(ctx context.Context, patterns []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.activePath == "" {
		return errors.New("no active accounts file configured")
	}
	if _, err := NewActiveFilter(patterns); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if patterns == nil {
		if err := os.Remove(s.activePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove active accounts file: %w", err)
		}
		return nil
	}

	data, err := s.active.marshal(activeFile{Active: patterns})
	if err != nil {
		return fmt.Errorf("encode active accounts file: %w", err)
	}
	return writeAtomic(s.activePath, data)
}

func (s *FileStore) mutate(ctx context.Context, fn func(file *accountsFile) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(&file); err != nil {
		return err
	}

	data, err := s.accounts.marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}
	return writeAtomic(s.accountsPath, data)
}

func (s *FileStore) read() (accountsFile, error) {
	data, err := os.ReadFile(s.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return accountsFile{}, nil
		}
		return accountsFile{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	if err := s.accounts.unmarshal(data, &file); err != nil {
		return accountsFile{}, fmt.Errorf("decode accounts file (%s): %w", s.accounts.name, err)
	}
	return file, nil
}

// writeAtomic writes data to a temp file next to path and renames it over
// path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, accountsDirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(accountsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	cleanup = false
	return nil
}
