package auth

import (
	"errors"

	"backend/internal/common"
	"backend/internal/user"

	"github.com/gin-gonic/gin"
)

// UserContextKey 用户上下文键
const UserContextKey = "user"

// UserContext 请求级用户上下文。角色取数据库当前值，
// 角色变更后无需重新签发令牌即可生效
type UserContext struct {
	UserID string
	Email  string
	Role   user.Role
}

// AuthMiddleware JWT 认证中间件。校验令牌后从数据库加载用户，
// 确保角色以数据库为准
func AuthMiddleware(jwtService *JWTService, users *user.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "缺少认证令牌")
			return
		}

		token := ExtractTokenFromBearer(authHeader)
		if token == "" {
			common.AbortWithError(c, common.CodeUnauthorized, "无效的令牌格式")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			common.AbortWithError(c, common.CodeUnauthorized, "令牌验证失败")
			return
		}

		u, err := users.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				common.AbortWithError(c, common.CodeUnauthorized, "用户不存在")
				return
			}
			common.AbortWithError(c, common.CodeInternalError, "加载用户失败")
			return
		}

		c.Set(UserContextKey, &UserContext{
			UserID: u.ID,
			Email:  u.Email,
			Role:   u.Role,
		})
		c.Next()
	}
}

// RequireRole 角色检查中间件，当前用户角色须在给定集合内
func RequireRole(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			common.AbortWithError(c, common.CodeUnauthorized, "未认证")
			return
		}
		for _, role := range roles {
			if userCtx.Role == role {
				c.Next()
				return
			}
		}
		common.AbortWithError(c, common.CodeForbidden, "权限不足")
	}
}

// RequireAssigned 拦截尚未分配角色的用户
func RequireAssigned() gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		if !ok {
			common.AbortWithError(c, common.CodeUnauthorized, "未认证")
			return
		}
		if userCtx.Role == user.RolePendingAssignment {
			common.AbortWithError(c, common.CodeForbidden, "账号尚未分配角色")
			return
		}
		c.Next()
	}
}

// GetUserContext 从 gin 上下文取用户信息
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}
	userCtx, ok := value.(*UserContext)
	return userCtx, ok
}
