package content

// demoBundles are the bundles shipped with the app, assigned in order to the
// classifier's first labels.
var demoBundles = []Bundle{
	{
		Images: []string{
			"https://via.placeholder.com/300?text=Label1_Image1",
			"https://via.placeholder.com/300?text=Label1_Image2",
			"https://via.placeholder.com/300?text=Label1_Image3",
		},
		Videos: []string{
			"https://www.youtube.com/watch?v=3JZ_D3ELwOQ",
			"https://www.youtube.com/watch?v=2Vv-BfVoq4g",
			"https://www.youtube.com/watch?v=3JZ_D3ELwOQ",
		},
		Texts: []string{
			"Label 1 related first text",
			"Label 1 related second text",
			"Label 1 related third text",
		},
	},
	{
		Images: []string{
			"https://via.placeholder.com/300?text=Label2_Image1",
			"https://via.placeholder.com/300?text=Label2_Image2",
			"https://via.placeholder.com/300?text=Label2_Image3",
		},
		Videos: []string{
			"https://www.youtube.com/watch?v=2Vv-BfVoq4g",
			"https://www.youtube.com/watch?v=3JZ_D3ELwOQ",
			"https://www.youtube.com/watch?v=2Vv-BfVoq4g",
		},
		Texts: []string{
			"Label 2 related first text",
			"Label 2 related second text",
			"Label 2 related third text",
		},
	},
	{
		Images: []string{
			"https://i.ibb.co/Gp5KgvV/memed-io-output.jpg",
			"https://i.ibb.co/Gp5KgvV/memed-io-output.jpg",
			"https://i.ibb.co/Gp5KgvV/memed-io-output.jpg",
		},
		Videos: []string{
			"https://www.youtube.com/watch?v=5tafCyiYGpU",
			"https://www.youtube.com/watch?v=unrcrAUdqH8",
			"https://www.youtube.com/watch?v=3JZ_D3ELwOQ",
		},
		Texts: []string{
			"Ping-dong",
			"Customizing is easy, which is nice",
			"Seems like a bad game",
		},
	},
}

// DemoTable assigns the built-in bundles to the first labels. Labels beyond
// the built-in set stay unmapped.
func DemoTable(labels []string) Table {
	t := make(Table, len(demoBundles))
	for i, l := range labels {
		if i >= len(demoBundles) {
			break
		}
		t[l] = demoBundles[i].clone()
	}
	return t
}
