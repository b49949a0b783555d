package service

import (
	"Folio/internal/api/dto"
	"Folio/internal/model"
	"Folio/internal/pkg/consts"
	"Folio/internal/pkg/security"
	"Folio/internal/repository"
	"context"
	"errors"
	log "log/slog"

	"github.com/go-sql-driver/mysql"
)

type UserService interface {
	Register(ctx context.Context, dto *dto.RegisterDTO) error
	Login(ctx context.Context, dto *dto.CredentialDTO) (string, error)
	Logout(ctx context.Context, token string) error
}

type UserServiceImpl struct {
	userRepo repository.UserRepo
	revoker  security.Revoker
}

func NewUserService(userRepo repository.UserRepo, revoker security.Revoker) UserService {
	return &UserServiceImpl{
		userRepo: userRepo,
		revoker:  revoker,
	}
}

func (s *UserServiceImpl) Register(ctx context.Context, regDTO *dto.RegisterDTO) error {
	found, err := s.userRepo.GetUserByUsername(ctx, regDTO.Username)
	if err != nil {
		return err
	}
	if found != nil {
		return ErrUserExist
	}

	hash, err := security.HashPassword(regDTO.Password)
	if err != nil {
		return err
	}
	nickname := regDTO.Nickname
	if nickname == "" {
		nickname = regDTO.Username
	}
	user := &model.User{
		Username: regDTO.Username,
		Nickname: nickname,
		Password: hash,
	}

	err = s.userRepo.CreateUser(ctx, user, []uint64{consts.DefaultRoleID})
	if err != nil {
		// 并发注册同名用户时由唯一索引兜底
		if isDuplicateError(err) {
			return ErrUserExist
		}
		return err
	}
	log.InfoContext(ctx, "user registered", "userID", user.ID)
	return nil
}

func (s *UserServiceImpl) Login(ctx context.Context, cred *dto.CredentialDTO) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, cred.Username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	if err = security.CheckPasswordHash(cred.Password, user.Password); err != nil {
		return "", ErrPasswordIncorrect
	}
	if user.IsBan {
		return "", ErrUserBan
	}
	return security.GenerateToken(user.ID, roleNames(user))
}

// Logout 将令牌签名加入黑名单直到其自然过期
func (s *UserServiceImpl) Logout(ctx context.Context, token string) error {
	signature, err := security.ExtractSignature(token)
	if err != nil {
		return ErrParamInvalid
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		return UnauthorizedError
	}
	return s.revoker.Revoke(ctx, signature, security.Remaining(claims))
}

func roleNames(user *model.User) []string {
	names := make([]string, 0, len(user.UserRoles))
	for _, ur := range user.UserRoles {
		if ur.Role.Name != "" {
			names = append(names, ur.Role.Name)
		}
	}
	return names
}

func isDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
