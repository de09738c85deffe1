package repository

import (
	"context"
	"database/sql"

	"github.com/saeid-a/CareMarketBack/internal/models"
)

// DirectoryRepository reads the provider and user records that appointment
// listings are enriched with. Profiles are owned by another system; the
// upserts exist for seeding.
type DirectoryRepository struct {
	db DBTX
}

func NewDirectoryRepository(db DBTX) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) ListProviderIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM provider_profiles
		WHERE user_id = $1
		ORDER BY id COLLATE "C" ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *DirectoryRepository) GetProviderProfile(ctx context.Context, providerID string) (*models.ProviderProfile, error) {
	query := `
		SELECT id, user_id, full_name, title, image_url
		FROM provider_profiles
		WHERE id = $1
	`

	var profile models.ProviderProfile
	var title sql.NullString
	var imageURL sql.NullString
	err := r.db.QueryRow(ctx, query, providerID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FullName,
		&title,
		&imageURL,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if title.Valid {
		profile.Title = &title.String
	}
	if imageURL.Valid {
		profile.ImageURL = &imageURL.String
	}

	return &profile, nil
}

func (r *DirectoryRepository) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT id, full_name, avatar_url
		FROM user_profiles
		WHERE id = $1
	`

	var profile models.UserProfile
	var avatarURL sql.NullString
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.FullName,
		&avatarURL,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if avatarURL.Valid {
		profile.AvatarURL = &avatarURL.String
	}

	return &profile, nil
}

func (r *DirectoryRepository) UpsertProviderProfile(ctx context.Context, profile models.ProviderProfile) error {
	query := `
		INSERT INTO provider_profiles (id, user_id, full_name, title, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			full_name = EXCLUDED.full_name,
			title = EXCLUDED.title,
			image_url = EXCLUDED.image_url
	`
	_, err := r.db.Exec(ctx, query, profile.ID, profile.UserID, profile.FullName, profile.Title, profile.ImageURL)
	return err
}

func (r *DirectoryRepository) UpsertUserProfile(ctx context.Context, profile models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (id, full_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url
	`
	_, err := r.db.Exec(ctx, query, profile.ID, profile.FullName, profile.AvatarURL)
	return err
}
