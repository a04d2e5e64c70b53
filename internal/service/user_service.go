package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService is the credential collaborator boundary: password
// verification and account provisioning for federated logins.
type UserService struct {
	Database *gorm.DB
}

func NewUserService(database *gorm.DB) *UserService {
	return &UserService{
		Database: database,
	}
}

func (us *UserService) Init() error {
	return nil
}

func (us *UserService) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := us.Database.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotLoggedIn
		}
		log.Error().Err(err).Int64("id", id).Msg("Failed to look up user")
		return nil, ErrSystemError
	}
	return &user, nil
}

func (us *UserService) GetByEmail(email string) (*model.User, error) {
	if email == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user model.User
	err := us.Database.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (us *UserService) Authenticate(username string, password string) (*model.User, error) {
	var user model.User
	err := us.Database.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotLoggedIn
		}
		log.Error().Err(err).Str("username", username).Msg("Failed to look up user")
		return nil, ErrSystemError
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrNotLoggedIn
	}
	return &user, nil
}

func (us *UserService) CreateUser(username string, email string, name string, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrSystemError
	}

	now := time.Now().Unix()
	user := model.User{
		Username:  username,
		Email:     email,
		Name:      name,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := us.Database.Create(&user).Error; err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to create user")
		return nil, ErrAccountConflict
	}

	return &user, nil
}

// Provision creates an account for a federated identity with a
// collision-resolved username and an unusable random password.
func (us *UserService) Provision(profile ProvisionProfile) (*model.User, error) {
	base := profile.Username
	if base == "" {
		base = utils.UsernameFromEmail(profile.Email, profile.Provider+"-user")
	}

	username := ""
	for attempt := 0; attempt < 5; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%s", base, utils.GenerateRandomString(4))
		}
		var count int64
		if err := us.Database.Model(&model.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			log.Error().Err(err).Msg("Failed to check username availability")
			return nil, ErrSystemError
		}
		if count == 0 {
			username = candidate
			break
		}
	}

	if username == "" {
		return nil, ErrAccountConflict
	}

	// Random password so the account cannot be logged into directly.
	user, err := us.CreateUser(username, profile.Email, profile.Name, utils.GenerateRandomString(32))
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", username).Str("provider", profile.Provider).Msg("Provisioned account for federated identity")
	return user, nil
}

type ProvisionProfile struct {
	Provider string
	Username string
	Email    string
	Name     string
}
