package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/codycody31/rcon-sentinel/internal/models"
	"github.com/codycody31/rcon-sentinel/internal/repository"
)

// Decrypter is the subset of repository.CredentialCipher CredentialsRepo
// needs, kept as an interface so this package never has to know the AEAD
// primitive chosen for credentials at rest.
type Decrypter interface {
	Decrypt(blob []byte) (string, error)
}

// CredentialsRepo satisfies rcon.CredentialsRepo, per spec.md §6's
// CredentialsRepo.getRconCredentials: decrypted on every resolve, never
// cached across failures.
type CredentialsRepo struct {
	db     Executor
	cipher Decrypter
}

// NewCredentialsRepo builds a CredentialsRepo. cipher decrypts the
// at-rest rcon_password blob into a usable plaintext password.
func NewCredentialsRepo(db Executor, cipher *repository.CredentialCipher) *CredentialsRepo {
	return &CredentialsRepo{db: db, cipher: cipher}
}

// GetRconCredentials satisfies rcon.CredentialsRepo.
func (r *CredentialsRepo) GetRconCredentials(ctx context.Context, serverID int) (models.RconCredentials, bool, error) {
	sqlStr, args, err := psql.Select(
		"s.address", "c.rcon_port", "c.rcon_password", "s.game_tag",
	).
		From("servers s").
		Join("server_credentials c ON c.server_id = s.id").
		Where(squirrel.Eq{"s.id": serverID}).
		ToSql()
	if err != nil {
		return models.RconCredentials{}, false, fmt.Errorf("postgres: build getRconCredentials query: %w", err)
	}

	var address, gameTag string
	var port int
	var blob []byte
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&address, &port, &blob, &gameTag)
	switch {
	case err == sql.ErrNoRows:
		return models.RconCredentials{}, false, nil
	case err != nil:
		return models.RconCredentials{}, false, fmt.Errorf("postgres: getRconCredentials: %w", err)
	}

	password, err := r.cipher.Decrypt(blob)
	if err != nil {
		return models.RconCredentials{}, false, fmt.Errorf("postgres: decrypt rcon password for server %d: %w", serverID, err)
	}

	return models.RconCredentials{
		ServerID:     serverID,
		Address:      address,
		Port:         port,
		RconPassword: password,
		GameEngine:   models.ClassifyGameEngine(gameTag),
	}, true, nil
}
