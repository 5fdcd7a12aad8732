package model

// Caller 经过网关鉴权后的调用方身份
// 在 HTTP 边界统一归一化，核心逻辑只认这一种身份
type Caller struct {
	UserID int64
}
