package address

// whitelist holds provider domains whose local parts can be safely
// canonicalised. Do NOT add domains of providers that hand out throwaway
// addresses (e.g. Mail.com, Runbox).
var whitelist = []string{
	"aol.com",

	"hotmail.com",
	"outlook.com",

	"gmail.com",
	"googlemail.com",

	"tutanota.com",
	"tutanota.de",
	"tutamail.com",
	"tuta.io",
	"keemail.me",

	"protonmail.com",
	"protonmail.ch",

	"icloud.com",
	"me.com",
	"mac.com",

	"rediffmail.com",

	"yahoo.com",

	"yandex.com",
	"yandex.ru",

	"mail.ru",

	"zoho.com",
	"zoho.eu",

	"hushmail.com",
	"hushmail.me",
	"hush.com",
	"hush.ai",
	"mac.hush.com",

	"fastmail.com",
	"fastmail.cn",
	"fastmail.co.uk",
	"fastmail.com.au",
	"fastmail.de",
	"fastmail.es",
	"fastmail.fm",
	"fastmail.fr",
	"fastmail.im",
	"fastmail.in",
	"fastmail.jp",
	"fastmail.mx",
	"fastmail.net",
	"fastmail.nl",
	"fastmail.org",
	"fastmail.se",
	"fastmail.to",
	"fastmail.tw",
	"fastmail.uk",
	"fastmail.us",
	"123mail.org",
	"airpost.net",
	"eml.cc",
	"fmail.co.uk",
	"fmgirl.com",
	"fmguy.com",
	"mailbolt.com",
	"mailcan.com",
	"mailhaven.com",
	"mailmight.com",
	"ml1.net",
	"mm.st",
	"myfastmail.com",
	"proinbox.com",
	"promessage.com",
	"rushpost.com",
	"sent.as",
	"sent.at",
	"sent.com",
	"speedymail.org",
	"warpmail.net",
	"xsmail.com",
	"150mail.com",
	"150ml.com",
	"16mail.com",
	"2-mail.com",
	"4email.net",
	"50mail.com",
	"allmail.net",
	"bestmail.us",
	"cluemail.com",
	"elitemail.org",
	"emailcorner.net",
	"emailengine.net",
	"emailengine.org",
	"emailgroups.net",
	"emailplus.org",
	"emailuser.net",
	"f-m.fm",
	"fast-email.com",
	"fast-mail.org",
	"fastem.com",
	"fastemail.us",
	"fastemailer.com",
	"fastest.cc",
	"fastimap.com",
	"fastmailbox.net",
	"fastmessaging.com",
	"fea.st",
	"fmailbox.com",
	"ftml.net",
	"h-mail.us",
	"hailmail.net",
	"imap-mail.com",
	"imap.cc",
	"imapmail.org",
	"inoutbox.com",
	"internet-e-mail.com",
	"internet-mail.org",
	"internetemails.net",
	"internetmailing.net",
	"jetemail.net",
	"justemail.net",
	"letterboxes.org",
	"mail-central.com",
	"mail-page.com",
	"mailandftp.com",
	"mailas.com",
	"mailc.net",
	"mailforce.net",
	"mailftp.com",
	"mailingaddress.org",
	"mailite.com",
	"mailnew.com",
	"mailsent.net",
	"mailservice.ms",
	"mailup.net",
	"mailworks.org",
	"mymacmail.com",
	"nospammail.net",
	"ownmail.net",
	"petml.com",
	"postinbox.com",
	"postpro.net",
	"realemail.net",
	"reallyfast.biz",
	"reallyfast.info",
	"speedpost.net",
	"ssl-mail.com",
	"swift-mail.com",
	"the-fastest.net",
	"the-quickest.com",
	"theinternetemail.com",
	"veryfast.biz",
	"veryspeedy.net",
	"yepmail.net",
	"your-mail.com",
}

// whitedict maps whitelisted domains to their reversed form.
var whitedict = func() map[string]string {
	m := make(map[string]string, len(whitelist))
	for _, d := range whitelist {
		m[d] = ReversedDomain(d)
	}
	return m
}()
