package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}

var lowStockTemplate = template.Must(template.New("low-stock").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #721c24;">Low Stock Alert</h2>
  <p>Hello Admin,</p>
  <p>The following product is running low on stock:</p>
  <div style="padding: 15px; border-left: 4px solid #dc3545; background-color: #f8f9fa;">
    <h3 style="margin-top: 0; color: #dc3545;">{{.Name}}</h3>
    <p style="margin: 5px 0;"><strong>Current Stock:</strong> {{.StockQuantity}} units</p>
    <p style="margin: 5px 0;"><strong>Price:</strong> ${{money .Price}}</p>
    {{if .Description}}<p style="margin: 5px 0;"><strong>Description:</strong> {{.Description}}</p>{{end}}
  </div>
  <p>Please consider restocking this product to avoid running out.</p>
  <p>This is an automated notification from your e-commerce system.</p>
</body>
</html>`))

var dailyReportTemplate = template.Must(template.New("daily-report").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #155724;">Daily Sales Report</h2>
  <p>{{.Date}}</p>
  <p>Hello Admin,</p>
  <p>Here's your daily sales summary:</p>
  <p><strong>Total Orders:</strong> {{.TotalOrders}}<br>
     <strong>Total Revenue:</strong> ${{money .TotalRevenue}}</p>
  {{if .Products}}
  <h3>Products Sold</h3>
  <table style="width: 100%; border-collapse: collapse;">
    <tr style="background-color: #f8f9fa;">
      <th style="padding: 10px; text-align: left;">Product</th>
      <th style="padding: 10px; text-align: center;">Quantity</th>
      <th style="padding: 10px; text-align: right;">Revenue</th>
    </tr>
    {{range .Products}}
    <tr>
      <td style="padding: 10px;">{{.Name}}</td>
      <td style="padding: 10px; text-align: center;">{{.QuantitySold}}</td>
      <td style="padding: 10px; text-align: right;">${{money .Revenue}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}
  <p>No sales were recorded today.</p>
  {{end}}
  <p>This is an automated daily report from your e-commerce system.</p>
</body>
</html>`))

func renderLowStock(event LowStockEvent) (string, error) {
	var buf strings.Builder
	if err := lowStockTemplate.Execute(&buf, event); err != nil {
		return "", fmt.Errorf("failed to render low-stock email: %w", err)
	}
	return buf.String(), nil
}

func renderDailyReport(event DailyReportEvent) (string, error) {
	var buf strings.Builder
	if err := dailyReportTemplate.Execute(&buf, event); err != nil {
		return "", fmt.Errorf("failed to render daily report email: %w", err)
	}
	return buf.String(), nil
}
