// Package pos is the built-in point-of-sale module. It is intentionally
// thin: the platform contract (routes, migrations, navigation) matters
// here, not retail features.
package pos

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/sokosuite/soko/internal/dispatch"
	"github.com/sokosuite/soko/internal/navigation"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const ModuleKey = "pos"

// Sale is one point-of-sale transaction.
type Sale struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index:ix_pos_sales_org" json:"org_id"`
	ReceiptNo  string       `gorm:"column:receipt_no;not null" json:"receipt_no"`
	Status     string       `gorm:"type:text;not null;default:'open'" json:"status"`
	TotalCents int64        `gorm:"column:total_cents;not null;default:0" json:"total_cents"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Sale) TableName() string { return "pos_sales" }

type posModule struct {
	genID *snowflake.Node
}

// New builds the module.
func New(genID *snowflake.Node) *posModule {
	return &posModule{genID: genID}
}

func (m *posModule) Key() string { return ModuleKey }

func (m *posModule) Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil
	}
	return sub
}

func (m *posModule) Navigation() []navigation.Item {
	return []navigation.Item{
		{Label: "Sales", Href: "/apps/pos", SortOrder: 1},
		{Label: "Reports", Href: "/apps/pos/reports/daily", ParentKey: "pos", SortOrder: 2},
	}
}

// Routes declares the module's route table. Order matters: the digits-only
// detail route sits above the generic report catch-all.
func (m *posModule) Routes() []dispatch.RouteDecl {
	return []dispatch.RouteDecl{
		dispatch.GET("", dispatch.HandlerFunc(m.listSales)),
		dispatch.POST("", dispatch.HandlerFunc(m.createSale)),
		dispatch.GET("{id}", dispatch.HandlerFunc(m.saleDetail)),
		dispatch.GET("reports/{name}", dispatch.HandlerFunc(m.report)),
	}
}

func (m *posModule) listSales(c *gin.Context, req dispatch.Request) {
	var sales []Sale
	err := req.Tenant.Scoped(c.Request.Context()).
		Order("created_at DESC").
		Limit(50).
		Find(&sales).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sales"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

type createSaleRequest struct {
	ReceiptNo  string `json:"receipt_no" binding:"required"`
	TotalCents int64  `json:"total_cents"`
}

func (m *posModule) createSale(c *gin.Context, req dispatch.Request) {
	var body createSaleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sale := Sale{
		ID:         m.genID.Generate(),
		OrgID:      req.Tenant.OrgID,
		ReceiptNo:  body.ReceiptNo,
		Status:     "open",
		TotalCents: body.TotalCents,
		CreatedAt:  time.Now().In(req.Tenant.Location),
	}

	err := req.Tenant.Transaction(c.Request.Context(), func(tx *gorm.DB) error {
		return tx.Create(&sale).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create sale"})
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (m *posModule) saleDetail(c *gin.Context, req dispatch.Request) {
	var sale Sale
	err := req.Tenant.Scoped(c.Request.Context()).
		Where("id = ?", req.Named["id"]).
		First(&sale).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (m *posModule) report(c *gin.Context, req dispatch.Request) {
	var result struct {
		Count int64 `json:"count"`
		Total int64 `json:"total_cents"`
	}
	err := req.Tenant.Scoped(c.Request.Context()).
		Model(&Sale{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_cents), 0) AS total").
		Scan(&result).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build report"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":      req.Named["name"],
		"count":       result.Count,
		"total_cents": result.Total,
	})
}
