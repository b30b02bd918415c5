package catalog

func price(v int64) *int64 { return &v }

// Default returns the built-in catalog.
func Default() *Set {
	return &Set{
		NonLegal: &Catalog{
			Type: NonLegal,
			Services: []ServiceEntry{
				{ID: "NL01", Name: "Paternity Testing", BasePrice: 2_500_000},
				{ID: "NL02", Name: "Maternity Testing", BasePrice: 2_500_000},
				{ID: "NL03", Name: "Sibling Testing", BasePrice: 3_200_000},
				{ID: "NL04", Name: "NIPT Prenatal Paternity", BasePrice: 18_000_000, ExpressPrice: price(3_000_000)},
			},
			CollectionMethods: []CollectionMethod{
				{Name: AtHome, Price: 0},
				{Name: AtFacility, Price: 0},
			},
		},
		Legal: &Catalog{
			Type: Legal,
			Services: []ServiceEntry{
				{ID: "L01", Name: "Paternity Testing", BasePrice: 3_500_000, ExpressPrice: price(2_000_000)},
				{ID: "L02", Name: "Maternity Testing", BasePrice: 3_500_000, ExpressPrice: price(2_000_000)},
				{ID: "L03", Name: "Birth Registration", BasePrice: 4_000_000},
				{ID: "L04", Name: "Immigration Testing", BasePrice: 6_500_000},
				{ID: "L05", Name: "Inheritance/Asset Division", BasePrice: 5_000_000},
				{ID: "L06", Name: "Sibling Testing", BasePrice: 4_200_000},
			},
			CollectionMethods: []CollectionMethod{
				{Name: AtFacility, Price: 0},
				{Name: AtHome, Price: 300_000},
			},
		},
		Kits: []Kit{
			{ID: "K001", Name: "Standard Buccal Swab Kit", Description: "Four cheek swabs per participant"},
			{ID: "K002", Name: "Blood Spot Kit", Description: "FTA card and lancets"},
			{ID: "K003", Name: "Prenatal Kit", Description: "Maternal blood tubes and cold pack"},
			{ID: "K004", Name: "Hair and Nail Kit", Description: "Envelopes for hair with roots or nail clippings"},
		},
		SampleTypes: []string{"Buccal Swab", "Blood", "Hair", "Nail", "Amniotic Fluid"},
	}
}
