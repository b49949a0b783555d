package wire

import (
	"Folio/internal/api"
	"Folio/internal/api/config"
	"Folio/internal/api/handler"
	"Folio/internal/job"
	"Folio/internal/pkg/cron"
	"Folio/internal/pkg/kafka"
	folioMongo "Folio/internal/pkg/mongo"
	"Folio/internal/pkg/redis"
	"Folio/internal/repository"
	"Folio/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)
	notificationRepo := folioMongo.NewNotificationRepo(mongoDB)

	bus := redis.NewNotifyBus()
	blacklist := redis.NewTokenBlacklist()

	userService := service.NewUserService(userRepo, blacklist)
	notificationService := service.NewNotificationService(notificationRepo, bus, cfg.Notification.PageSize)

	handlers := &api.HandlersGroup{
		UserHandler:         handler.NewUserHandler(userService),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		WsHandler:           handler.NewWsHandler(notificationService, bus, blacklist),
	}

	router := api.SetupRouter(handlers, blacklist)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, notificationService)
	if err != nil {
		return nil, err
	}

	cleanupJob := job.NewNotificationCleanupJob(notificationService, cfg.Notification.RetentionDays)
	cronMgr := cron.NewCronManager(cfg.Notification.CleanupSpec, cleanupJob)

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
	}, nil
}
