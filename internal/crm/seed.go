package crm

import (
	"context"
	"fmt"
)

var seedVehicles = []Vehicle{
	{ID: "VEH-NEX-PET", Model: "Nexon", Variant: "Smart", FuelType: "Petrol", PriceExShowroom: 815000, PriceOnRoad: 950000, Engine: "1.2L Turbocharged Petrol", Mileage: "17.4 km/l", Features: "5-star safety, Touchscreen, Automatic Climate Control", InStock: true, CurrentOffer: "Exchange bonus up to Rs 50,000"},
	{ID: "VEH-NEX-PET-TOP", Model: "Nexon", Variant: "Fearless+ S", FuelType: "Petrol", PriceExShowroom: 1550000, PriceOnRoad: 1750000, Engine: "1.2L Turbocharged Petrol", Mileage: "17.4 km/l", Features: "5-star safety, Sunroof, Ventilated Seats, 360 Camera", InStock: true, CurrentOffer: "Exchange bonus up to Rs 50,000"},
	{ID: "VEH-NEX-DIE", Model: "Nexon", Variant: "Smart", FuelType: "Diesel", PriceExShowroom: 1000000, PriceOnRoad: 1150000, Engine: "1.5L Turbocharged Diesel", Mileage: "21.5 km/l", Features: "5-star safety, Touchscreen, Automatic Climate Control", InStock: true, CurrentOffer: "Exchange bonus up to Rs 50,000"},
	{ID: "VEH-NEX-EV-PRI", Model: "Nexon EV", Variant: "Prime", FuelType: "Electric", PriceExShowroom: 1449000, PriceOnRoad: 1550000, Engine: "Electric Motor 143PS", Mileage: "325 km range", Features: "Fast charging, Connected car tech, Regenerative braking", InStock: true, CurrentOffer: "Rs 50,000 exchange bonus"},
	{ID: "VEH-NEX-EV-LR", Model: "Nexon EV", Variant: "Fearless Long Range", FuelType: "Electric", PriceExShowroom: 1749000, PriceOnRoad: 1850000, Engine: "Electric Motor 143PS", Mileage: "465 km range", Features: "Fast charging, Sunroof, Ventilated seats, ADAS", InStock: true, CurrentOffer: "Rs 50,000 exchange bonus"},
	{ID: "VEH-PUN-PET", Model: "Punch", Variant: "Pure", FuelType: "Petrol", PriceExShowroom: 613000, PriceOnRoad: 720000, Engine: "1.2L Petrol", Mileage: "18.8 km/l", Features: "5-star safety, High ground clearance", InStock: true, CurrentOffer: "Corporate discount Rs 15,000"},
	{ID: "VEH-PUN-TOP", Model: "Punch", Variant: "Creative+ AMT", FuelType: "Petrol", PriceExShowroom: 1020000, PriceOnRoad: 1150000, Engine: "1.2L Petrol AMT", Mileage: "18.2 km/l", Features: "5-star safety, Sunroof, Touchscreen, Cruise Control", InStock: true, CurrentOffer: "Corporate discount Rs 15,000"},
	{ID: "VEH-PUN-EV", Model: "Punch EV", Variant: "Adventure Long Range", FuelType: "Electric", PriceExShowroom: 1429000, PriceOnRoad: 1520000, Engine: "Electric Motor 122PS", Mileage: "421 km range", Features: "Fast charging, Connected car, Regenerative braking", InStock: true, CurrentOffer: ""},
	{ID: "VEH-HAR-ADV", Model: "Harrier", Variant: "Adventure+", FuelType: "Diesel", PriceExShowroom: 1549000, PriceOnRoad: 1750000, Engine: "2.0L Kryotec Diesel", Mileage: "14.6 km/l", Features: "Panoramic sunroof, 360 camera, JBL audio", InStock: true, CurrentOffer: "Exchange bonus Rs 40,000"},
	{ID: "VEH-HAR-TOP", Model: "Harrier", Variant: "Fearless+ AT", FuelType: "Diesel", PriceExShowroom: 2644000, PriceOnRoad: 2900000, Engine: "2.0L Kryotec Diesel Automatic", Mileage: "14.6 km/l", Features: "ADAS, Ventilated seats, 360 camera, Level 2 ADAS", InStock: true, CurrentOffer: "Exchange bonus Rs 40,000"},
	{ID: "VEH-SAF-SMA", Model: "Safari", Variant: "Smart", FuelType: "Diesel", PriceExShowroom: 1619000, PriceOnRoad: 1850000, Engine: "2.0L Kryotec Diesel", Mileage: "14.5 km/l", Features: "7-seater, Captain seats, Touchscreen", InStock: true, CurrentOffer: "Exchange bonus Rs 45,000"},
	{ID: "VEH-SAF-TOP", Model: "Safari", Variant: "Accomplished+ AT", FuelType: "Diesel", PriceExShowroom: 2734000, PriceOnRoad: 3000000, Engine: "2.0L Kryotec Diesel Automatic", Mileage: "14.5 km/l", Features: "6/7 seater, ADAS, Panoramic sunroof, Ventilated seats", InStock: true, CurrentOffer: "Exchange bonus Rs 45,000"},
	{ID: "VEH-TIA-XE", Model: "Tiago", Variant: "XE", FuelType: "Petrol", PriceExShowroom: 565000, PriceOnRoad: 680000, Engine: "1.2L Petrol", Mileage: "19.8 km/l", Features: "Dual airbags, ABS, Music system", InStock: true, CurrentOffer: "First time buyer Rs 10,000 off"},
	{ID: "VEH-TIA-TOP", Model: "Tiago", Variant: "XZ+ AMT", FuelType: "Petrol", PriceExShowroom: 845000, PriceOnRoad: 980000, Engine: "1.2L Petrol AMT", Mileage: "19.2 km/l", Features: "Touchscreen, Automatic, Apple CarPlay, Android Auto", InStock: true, CurrentOffer: "First time buyer Rs 10,000 off"},
	{ID: "VEH-TIA-EV", Model: "Tiago EV", Variant: "XZ+ Long Range", FuelType: "Electric", PriceExShowroom: 1189000, PriceOnRoad: 1280000, Engine: "Electric Motor 75PS", Mileage: "315 km range", Features: "Fast charging, Connected car, Regenerative braking", InStock: true, CurrentOffer: ""},
	{ID: "VEH-ALT-XE", Model: "Altroz", Variant: "XE", FuelType: "Petrol", PriceExShowroom: 670000, PriceOnRoad: 780000, Engine: "1.2L Petrol", Mileage: "19.4 km/l", Features: "5-star safety, Premium hatchback", InStock: true, CurrentOffer: "Corporate discount Rs 15,000"},
	{ID: "VEH-ALT-TOP", Model: "Altroz", Variant: "XZ+ Turbo DCT", FuelType: "Petrol", PriceExShowroom: 1095000, PriceOnRoad: 1250000, Engine: "1.2L Turbo Petrol DCT", Mileage: "18.0 km/l", Features: "5-star safety, Sunroof, DCT automatic, Touchscreen", InStock: true, CurrentOffer: "Corporate discount Rs 15,000"},
	{ID: "VEH-TIG-XE", Model: "Tigor", Variant: "XE", FuelType: "Petrol", PriceExShowroom: 630000, PriceOnRoad: 750000, Engine: "1.2L Petrol", Mileage: "19.0 km/l", Features: "Compact sedan, ABS, Dual airbags", InStock: true, CurrentOffer: "First time buyer Rs 10,000 off"},
	{ID: "VEH-TIG-EV", Model: "Tigor EV", Variant: "XZ+ Long Range", FuelType: "Electric", PriceExShowroom: 1375000, PriceOnRoad: 1450000, Engine: "Electric Motor 75PS", Mileage: "315 km range", Features: "Fast charging, Connected car, Sedan comfort", InStock: true, CurrentOffer: ""},
}

var seedCustomers = []Customer{
	{ID: "CUST-DEMO-001", Name: "Rajesh Kumar", Phone: "+91 98765 43210", Email: "rajesh.kumar@email.com", City: "Pune", Notes: "Regular service customer"},
	{ID: "CUST-DEMO-002", Name: "Priya Sharma", Phone: "+91 87654 32109", Email: "priya.sharma@email.com", City: "Pune"},
}

// Seed loads the demo catalog and customers. It is a no-op when vehicles
// already exist.
func (s *Store) Seed(ctx context.Context) (int, error) {
	var count int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&Vehicle{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("crm: seed: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	vehicles := append([]Vehicle(nil), seedVehicles...)
	if err := db.Create(&vehicles).Error; err != nil {
		return 0, fmt.Errorf("crm: seed vehicles: %w", err)
	}
	customers := make([]Customer, len(seedCustomers))
	for i, c := range seedCustomers {
		c.CreatedAt = s.now()
		customers[i] = c
	}
	if err := db.Create(&customers).Error; err != nil {
		return 0, fmt.Errorf("crm: seed customers: %w", err)
	}
	return len(vehicles) + len(customers), nil
}
