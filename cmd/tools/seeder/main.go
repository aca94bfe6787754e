package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedProducts(db)
	seedPromotions(db)
	seedMembers(db)

	log.Println("Seeding completed successfully!")
}

func seedProducts(db *sql.DB) {
	products := []struct {
		SKU     string
		Barcode string
		Name    string
		Mode    string
		Price   int64
		Stock   int
	}{
		{"SKU-0001", "8991002101012", "Indomie Goreng", "UNIT", 3500, 500},
		{"SKU-0002", "8991002101029", "Teh Botol Sosro 450ml", "UNIT", 5000, 300},
		{"SKU-0003", "8991002101036", "Aqua 600ml", "UNIT", 4000, 600},
		{"SKU-0004", "8991002101043", "Sabun Lifebuoy", "UNIT", 6500, 150},
		{"SKU-0005", "8991002101050", "Kopi Kapal Api 165g", "UNIT", 14500, 80},
		{"SKU-0006", "8991002101067", "Minyak Goreng Bimoli 1L", "UNIT", 22000, 120},
		{"SKU-0007", "8991002101074", "Susu Ultra 1L", "UNIT", 19500, 90},
		{"SKU-0008", "8991002101081", "Roti Tawar Sari Roti", "UNIT", 16000, 40},
		{"SKU-0101", "2000000000017", "Beras Premium", "WEIGHTED", 14000, 0},
		{"SKU-0102", "2000000000024", "Gula Pasir", "WEIGHTED", 17500, 0},
		{"SKU-0103", "2000000000031", "Apel Fuji", "WEIGHTED", 45000, 0},
		{"SKU-0104", "2000000000048", "Daging Sapi", "WEIGHTED", 135000, 0},
		{"SKU-0105", "2000000000055", "Bawang Merah", "WEIGHTED", 38000, 0},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (sku, barcode, name, pricing_mode, unit_price, stock)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (sku) DO UPDATE SET
				barcode = EXCLUDED.barcode,
				name = EXCLUDED.name,
				pricing_mode = EXCLUDED.pricing_mode,
				unit_price = EXCLUDED.unit_price,
				stock = EXCLUDED.stock;
		`, p.SKU, p.Barcode, p.Name, p.Mode, p.Price, p.Stock)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.SKU, err)
		}
	}
}

func seedPromotions(db *sql.DB) {
	fmt.Println("Seeding Promotions...")

	promos := []struct {
		Code       string
		Kind       string
		Value      int64
		PercentBps int
	}{
		{"HEMAT5000", "AMOUNT", 5000, 0},
		{"DISKON10", "PERCENT", 0, 1000},
	}
	for _, p := range promos {
		_, err := db.Exec(`
			INSERT INTO promotions (code, kind, value, percent_bps, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (code) DO UPDATE SET
				kind = EXCLUDED.kind,
				value = EXCLUDED.value,
				percent_bps = EXCLUDED.percent_bps,
				active = TRUE;
		`, p.Code, p.Kind, p.Value, p.PercentBps)
		if err != nil {
			log.Printf("Failed to seed promotion %s: %v", p.Code, err)
		}
	}

	// Buy two instant noodles, get one bottled water.
	_, err := db.Exec(`
		INSERT INTO promotions (code, kind, buy_qty, get_qty, variant, product_x, product_y, active)
		SELECT 'MIEGRATIS', 'BUY_X_GET_Y', 2, 1, 'DIFFERENT_PRODUCT', x.id, y.id, TRUE
		FROM products x, products y
		WHERE x.sku = 'SKU-0001' AND y.sku = 'SKU-0003'
		ON CONFLICT (code) DO NOTHING;
	`)
	if err != nil {
		log.Printf("Failed to seed promotion MIEGRATIS: %v", err)
	}
}

func seedMembers(db *sql.DB) {
	members := []struct {
		Code    string
		Name    string
		Balance int64
	}{
		{"M-0001", "Budi Santoso", 120},
		{"M-0002", "Siti Aminah", 45},
		{"M-0003", "Andi Pratama", 0},
		{"M-0004", "Dewi Lestari", 800},
	}

	fmt.Println("Seeding Members...")
	for _, m := range members {
		_, err := db.Exec(`
			INSERT INTO members (code, name, point_balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				point_balance = EXCLUDED.point_balance;
		`, m.Code, m.Name, m.Balance)
		if err != nil {
			log.Printf("Failed to seed member %s: %v", m.Code, err)
		}
	}
}
