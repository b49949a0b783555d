package consts

const (
	NotifyUserChannel = "notify:user:"
	TokenBlacklistKey = "token:blacklist:"
)
