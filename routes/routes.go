package routes

import (
	"net/http"
	"time"

	"device_inventory_tool/app"
	"device_inventory_tool/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) *controllers.Srv {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	uc := controllers.NewUserController(s)
	devCtl := controllers.NewDeviceController(s)
	stuCtl := controllers.NewStudentController(s)
	asgCtl := controllers.NewAssignmentController(s)
	conCtl := controllers.NewContractController(s)
	retCtl := controllers.NewRetentionController(s)
	invCtl := controllers.NewInventoryController(s)
	setCtl := controllers.NewSettingsController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo, a.Config)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute, a.Log)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// 所有登录账号可用；普通用户只能访问自己名下的设备、学生、分配与合同
	api := r.Group("/api", authMW, seenMW)

	// 会话
	api.GET("/me", uc.Me)
	api.POST("/logout", uc.Logout)
	api.POST("/logout-all", uc.LogoutAll)

	// ------------------------------
	// 设备
	// ------------------------------
	devices := api.Group("/devices")
	{
		devices.GET("", devCtl.ListDevices) // ?status=
		devices.POST("/import", devCtl.ImportDevices)
		devices.PUT("/:id/status", devCtl.SetStatus) // ?status=&override=
		devices.GET("/:id/history", devCtl.History)
	}

	// ------------------------------
	// 学生
	// ------------------------------
	students := api.Group("/students")
	{
		students.GET("", stuCtl.ListStudents)
		students.POST("/import", stuCtl.ImportStudents)
		students.GET("/:id", stuCtl.GetStudent)
		students.DELETE("/:id", stuCtl.DeleteStudent) // 两阶段确认
	}

	// ------------------------------
	// 分配
	// ------------------------------
	assignments := api.Group("/assignments")
	{
		assignments.GET("", asgCtl.ListAssignments) // ?scope=
		assignments.GET("/filtered", asgCtl.FilterAssignments)
		assignments.GET("/export", asgCtl.Export)
		assignments.POST("", asgCtl.CreateAssignment)
		assignments.POST("/auto-assign", asgCtl.AutoAssign)
		assignments.GET("/auto-assign/preview", asgCtl.AutoAssignPreview)
		assignments.POST("/batch-dissolve", asgCtl.BatchDissolve)
		assignments.DELETE("/:id", asgCtl.Dissolve)
		assignments.POST("/:id/dismiss-warning", asgCtl.DismissWarning)
		assignments.POST("/:id/upload-contract", asgCtl.UploadContract)
	}

	// ------------------------------
	// 合同
	// ------------------------------
	contracts := api.Group("/contracts")
	{
		contracts.GET("/unassigned", conCtl.ListUnassigned)
		contracts.POST("/upload-multiple", conCtl.UploadMultiple)
		contracts.POST("/:id/assign/:assignmentId", conCtl.ManualAssign)
		contracts.GET("/:id", conCtl.GetContract)
		contracts.GET("/:id/download", conCtl.Download)
		contracts.DELETE("/:id", conCtl.DeleteContract) // 两阶段确认
	}

	api.GET("/exports/inventory", invCtl.Export)
	api.POST("/imports/inventory", invCtl.Import)

	api.GET("/settings/global", setCtl.Get)

	// ------------------------------
	// 仅管理员
	// ------------------------------
	api.POST("/data-protection/cleanup-old-data", adminMW, retCtl.Cleanup)
	api.PUT("/settings/global", adminMW, setCtl.Update)
	api.GET("/audit-log", adminMW, setCtl.AuditLog)

	admin := api.Group("/admin", adminMW)
	{
		users := admin.Group("/users")
		users.GET("", uc.ListUsers) // ?q=&page=&size=
		users.POST("", uc.CreateUser)
		users.GET("/:id", uc.GetUser)
		users.PUT("/:id", uc.UpdateUser)
		users.DELETE("/:id", uc.DeactivateUser) // 停用，不删除
	}

	return s
}
