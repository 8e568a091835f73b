package pattern

// disposableDomains is a representative sample of the teacher's embedded
// disposable-provider list (utils/verifier.go's disposableDomainList),
// loaded as data per spec.md §1's treatment of static word lists.
var disposableDomains = buildSet([]string{
	"0-mail.com", "0815.ru", "0clickemail.com", "0wnd.net", "0wnd.org", "10minutemail.co.za",
	"10minutemail.com", "123-m.com", "1fsdfdsfsdf.tk", "1pad.de", "20minutemail.com", "21cn.com",
	"2fdgdfgdfgdf.tk", "2prong.com", "30minutemail.com", "33mail.com", "3d-painting.com", "4gfdsgfdgfd.tk",
	"4warding.com", "4warding.net", "4warding.org", "5ghgfhfghfgh.tk", "60minutemail.com", "675hosting.com",
	"675hosting.net", "675hosting.org", "6hjgjhgkilkj.tk", "6ip.us", "6paq.com", "6url.com",
	"75hosting.com", "75hosting.net", "75hosting.org", "7tags.com", "9ox.net", "a-bc.net",
	"afrobacon.com", "agedmail.com", "ajaxapp.net", "amilegit.com", "amiri.net", "amiriindustries.com",
	"anonbox.net", "anonmails.de", "anonymbox.com", "antichef.com", "antichef.net", "antireg.ru",
	"antispam.de", "antispam24.de", "antispammail.de", "armyspy.com", "artman-conception.com", "azmeil.tk",
	"baxomale.ht.cx", "beefmilk.com", "bigstring.com", "binkmail.com", "bio-muesli.net", "bobmail.info",
	"bodhi.lawlita.com", "bofthew.com", "bootybay.de", "boun.cr", "bouncr.com", "breakthru.com",
	"brefmail.com", "broadbandninja.com", "bsnow.net", "bspamfree.org", "bugmenot.com", "bumpymail.com",
	"casualdx.com", "centermail.com", "centermail.net", "chogmail.com", "choicemail1.com", "clixser.com",
	"cool.fr.nf", "courriel.fr.nf", "courrieltemporaire.com", "cubiclink.com", "curryworld.de", "cust.in",
	"dacoolest.com", "dandikmail.com", "dayrep.com", "deadaddress.com", "deadspam.com", "delikkt.de",
	"despam.it", "despammed.com", "devnullmail.com", "dfgh.net", "digitalsanctuary.com", "discard.email",
	"discardmail.com", "discardmail.de", "disposableaddress.com", "disposableemailaddresses.com", "disposableinbox.com", "dispose.it",
	"dispostable.com", "dodgeit.com", "dodgit.com", "dodgit.org", "donemail.ru", "dontreg.com",
	"dontsendmespam.de", "dump-email.info", "dumpandjunk.com", "dumpmail.de", "dumpyemail.com", "e-mail.com",
	"e-mail.org", "e4ward.com", "email60.com", "emaildienst.de", "emailigo.de", "emailinfive.com",
	"emailmiser.com", "emailsensei.com", "emailtemporario.com.br", "emailwarden.com", "emailx.at.hm", "emailxfer.com",
	"emeil.in", "emeil.ir", "emz.net", "enterto.com", "ephemail.net", "etranquil.com",
	"etranquil.net", "etranquil.org", "explodemail.com", "fake-mail.com", "fakeinbox.com", "fakeinformation.com",
	"fansworldwide.de", "fantasymail.de", "fightallspam.com", "filzmail.com", "fivemail.de", "fleckens.hu",
	"frapmail.com", "friendlymail.co.uk", "fuckingduh.com", "fudgerub.com", "fyii.de", "garliclife.com",
	"gehensiemirnichtaufdensack.de", "get1mail.com", "get2mail.fr", "getairmail.com", "getonemail.com", "guerrillamail.com",
	"mail-temp.com", "mailcatch.com", "maildrop.cc", "mailinator.com", "mailinator2.com", "mailmetrash.com",
	"mailnesia.com", "mintemail.com", "mytemp.email", "notmailinator.com", "spam.la", "spam4.me",
	"spambox.us", "spamcorptastic.com", "spamday.com", "spamdecoy.net", "spamfree.eu", "spamfree24.org",
	"spamgourmet.com", "spamherelots.com", "spamhereplease.com", "spamhole.com", "spamspot.com", "spamthis.co.uk",
	"spamthisplease.com", "suremail.info", "temp-mail.io", "temp-mail.org", "tempail.com", "tempemail.net",
	"tempinbox.com", "tempmail.org", "tempmailaddress.com", "tempomail.fr", "temporaryinbox.com", "thankyou2010.com",
	"thisisnotmyrealemail.com", "throwawaymail.com", "trash-mail.at", "trash-mail.com", "trash-mail.de", "trashmail.at",
	"trashmail.com", "trashmail.de", "trashmail.me", "trashmail.net", "trashmail.org", "trashmail.ws",
	"trashymail.com", "trashymail.net", "trialmail.de", "tyldd.com", "wh4f.org", "willselfdestruct.com",
	"wronghead.com", "www.e4ward.com", "yopmail.com", "zippymail.info", "zoemail.org",
})

// roleAccounts is the list of local parts that identify a shared/role
// mailbox rather than a person, grounded on ahmadpiran-mailvetter/static.go.
var roleAccounts = buildSet([]string{
	"admin", "support", "info", "sales", "contact", "help", "office",
	"marketing", "jobs", "billing", "abuse", "postmaster", "noreply",
	"no-reply", "webmaster", "hostmaster", "hr",
})

func buildSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// IsDisposableDomain reports whether domain is a known throwaway-mail
// provider.
func IsDisposableDomain(domain string) bool {
	_, ok := disposableDomains[domain]
	return ok
}

// IsRoleAccount reports whether localPart names a shared mailbox rather
// than an individual.
func IsRoleAccount(localPart string) bool {
	_, ok := roleAccounts[localPart]
	return ok
}
