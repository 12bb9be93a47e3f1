package main

// sarcasmSet is a labelled set of everyday complaints and plain statements. Entries
// alternate, starting with a sarcastic one.
var sarcasmSet = []labelledSentence{
	{Text: "Oh great, I spilled coffee all over my shirt this morning while rushing to my meeting!", Sarcastic: true},
	{Text: "I finally finished my project ahead of time, and my boss seemed genuinely impressed.", Sarcastic: false},
	{Text: "Wonderful, my train was delayed again, making me late for an important appointment!", Sarcastic: true},
	{Text: "I had a healthy breakfast today, feeling energized for the rest of the morning.", Sarcastic: false},
	{Text: "Fantastic, I got stuck in traffic for two hours and missed my friend's birthday dinner.", Sarcastic: true},
	{Text: "I read a book in the afternoon and really enjoyed the plot twists.", Sarcastic: false},
	{Text: "Oh joy, my laptop crashed mid-assignment, losing all my unsaved work.", Sarcastic: true},
	{Text: "I took my dog for a walk today, enjoying the fresh air and sunshine.", Sarcastic: false},
	{Text: "Amazing, my phone battery died mid-call when I was explaining my project!", Sarcastic: true},
	{Text: "I watered the plants today and they look much healthier now.", Sarcastic: false},
	{Text: "Best day ever, lost my wallet on the way to work and had to cancel all my cards!", Sarcastic: true},
	{Text: "I cooked dinner for my family, and everyone loved it.", Sarcastic: false},
	{Text: "Thrilled beyond words that my flight got cancelled, ruining my weekend plans.", Sarcastic: true},
	{Text: "I went grocery shopping today and found everything on my list.", Sarcastic: false},
	{Text: "Absolutely perfect, spilled tea on my notes right before the presentation.", Sarcastic: true},
	{Text: "I did some laundry, and finally organized my clothes.", Sarcastic: false},
	{Text: "So amazing, the printer ran out of ink right as I was printing my assignment.", Sarcastic: true},
	{Text: "I had a short nap in the afternoon and feel more refreshed now.", Sarcastic: false},
	{Text: "My cat knocked over my vase, wonderful! It shattered everywhere.", Sarcastic: true},
	{Text: "I called my friend today to catch up and had a great conversation.", Sarcastic: false},
	{Text: "Couldn't be happier, missed my bus this morning and was late for work.", Sarcastic: true},
	{Text: "I watered the garden today and the flowers are blooming beautifully.", Sarcastic: false},
	{Text: "Just what I needed, a flat tire on the way to work during rush hour.", Sarcastic: true},
	{Text: "I listened to some music while relaxing, and it lifted my mood.", Sarcastic: false},
	{Text: "My favorite show got cancelled, amazing! I was looking forward to it all week.", Sarcastic: true},
	{Text: "I did a 30-minute workout and feel proud of sticking to my routine.", Sarcastic: false},
	{Text: "So grateful, lost all my files due to a crash right before the deadline.", Sarcastic: true},
	{Text: "I cleaned my desk today and finally feel organized.", Sarcastic: false},
	{Text: "Absolutely amazing, got a parking ticket while running a quick errand.", Sarcastic: true},
	{Text: "I took a relaxing shower and feel refreshed and calm.", Sarcastic: false},
	{Text: "Living the dream, my phone stopped working mid-call when I was talking to my parents!", Sarcastic: true},
	{Text: "I had a nice chat with a colleague and exchanged some helpful tips.", Sarcastic: false},
	{Text: "Best day ever, my coffee spilled on the keyboard right before submitting my report.", Sarcastic: true},
	{Text: "I cooked a new recipe and it turned out delicious!", Sarcastic: false},
	{Text: "Truly blessed, forgot my wallet at home and had to borrow money from a friend.", Sarcastic: true},
	{Text: "I watered my indoor plants and they are thriving.", Sarcastic: false},
	{Text: "So wonderful, printer jammed again in the middle of printing my tickets.", Sarcastic: true},
	{Text: "I went for a walk in the park and enjoyed the fresh air and scenery.", Sarcastic: false},
	{Text: "My alarm didn't go off, fantastic! I was late for my meeting.", Sarcastic: true},
	{Text: "I wrote in my journal today and reflected on my achievements.", Sarcastic: false},
	{Text: "Absolutely perfect, my email got lost right before the client meeting.", Sarcastic: true},
	{Text: "I organized my bookshelf and found books I forgot I had.", Sarcastic: false},
	{Text: "Wonderful, my package was delivered to the wrong address, again.", Sarcastic: true},
	{Text: "I meditated for 15 minutes and feel more centered and calm.", Sarcastic: false},
	{Text: "Just what I needed, my car wouldn't start when I was running late.", Sarcastic: true},
	{Text: "I called my parents to check on them and had a lovely chat.", Sarcastic: false},
	{Text: "So amazing, the internet went down during my online presentation.", Sarcastic: true},
	{Text: "I practiced piano today and managed to play the difficult parts flawlessly.", Sarcastic: false},
	{Text: "Thrilled beyond words, spilled juice on my notes just before submitting them.", Sarcastic: true},
	{Text: "I did a puzzle and enjoyed solving it piece by piece.", Sarcastic: false},
}
